package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ErrUnsealFailed — значение cookie повреждено, подделано или зашифровано другим ключом.
var ErrUnsealFailed = errors.New("не удалось открыть значение cookie")

// sealer шифрует значения cookie AES-256-GCM.
// Назначение значения (purpose) участвует как associated data:
// содержимое одной cookie не откроется под именем другой.
type sealer struct {
	gcm cipher.AEAD
}

func newSealer(secret string) (*sealer, error) {
	key, err := deriveKey(secret)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания GCM: %w", err)
	}
	return &sealer{gcm: gcm}, nil
}

// deriveKey возвращает 32-байтовый ключ:
// пустой секрет — случайный ключ (сессии не переживают рестарт),
// base64 от 32 байт — ключ как есть, любая другая строка — SHA-256 от неё.
func deriveKey(secret string) ([]byte, error) {
	if secret == "" {
		key := make([]byte, 32)
		if _, err := io.ReadFull(rand.Reader, key); err != nil {
			return nil, fmt.Errorf("ошибка генерации ключа сессии: %w", err)
		}
		return key, nil
	}
	if raw, err := base64.StdEncoding.DecodeString(secret); err == nil && len(raw) == 32 {
		return raw, nil
	}
	sum := sha256.Sum256([]byte(secret))
	return sum[:], nil
}

// seal сериализует v в JSON и шифрует: base64url(nonce || ciphertext).
func (s *sealer) seal(purpose string, v any) (string, error) {
	plaintext, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("ошибка сериализации %s: %w", purpose, err)
	}
	nonce := make([]byte, s.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("ошибка генерации nonce: %w", err)
	}
	sealed := s.gcm.Seal(nonce, nonce, plaintext, []byte(purpose))
	return base64.URLEncoding.EncodeToString(sealed), nil
}

// open расшифровывает значение, запечатанное seal с тем же purpose.
func (s *sealer) open(purpose, value string, v any) error {
	sealed, err := base64.URLEncoding.DecodeString(value)
	if err != nil {
		return fmt.Errorf("%w: %s: base64: %v", ErrUnsealFailed, purpose, err)
	}
	n := s.gcm.NonceSize()
	if len(sealed) < n {
		return fmt.Errorf("%w: %s: слишком короткое значение", ErrUnsealFailed, purpose)
	}
	plaintext, err := s.gcm.Open(nil, sealed[:n], sealed[n:], []byte(purpose))
	if err != nil {
		return fmt.Errorf("%w: %s", ErrUnsealFailed, purpose)
	}
	if err := json.Unmarshal(plaintext, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrUnsealFailed, purpose, err)
	}
	return nil
}
