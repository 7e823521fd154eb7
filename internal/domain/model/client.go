package model

import "time"

// ClientLimit — клиент белого списка с допустимым диапазоном суммы займа.
// Хранится в таблице client_limits, dni уникален.
type ClientLimit struct {
	// ID — UUID записи
	ID string
	// DNI — номер документа (только цифры)
	DNI string
	// FullName — имя клиента
	FullName string
	// MinAmount — минимальная сумма
	MinAmount float64
	// MaxAmount — максимальная сумма
	MaxAmount float64
	// CreatedAt — время создания записи
	CreatedAt time.Time
	// UpdatedAt — время последнего обновления
	UpdatedAt time.Time
}

// ClientPatch — частичное обновление клиента. nil — поле не меняется.
type ClientPatch struct {
	DNI       *string
	FullName  *string
	MinAmount *float64
	MaxAmount *float64
}

// BulkFailure — ошибка обновления одной записи при массовом обновлении.
type BulkFailure struct {
	ID    string
	Error string
}

// BulkUpdateResult — итог массового обновления лимитов.
type BulkUpdateResult struct {
	// Mode — режим выполнения (fanout, atomic)
	Mode string
	// Updated — количество обновлённых записей
	Updated int
	// Failed — записи, которые не удалось обновить
	Failed []BulkFailure
}
