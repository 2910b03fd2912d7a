package chunker

import "errors"

// DefaultWindowSize - размер окна по умолчанию (в символах)
const DefaultWindowSize = 1000

// ErrEmptyInput возвращается, если в тексте нет ни одного значимого символа
var ErrEmptyInput = errors.New("chunker: input text is empty")

// Chunk представляет единицу текста для векторизации
type Chunk struct {
	Index  int    // Порядковый номер в документе, с нуля
	Text   string // Текст чанка
	Source string // Имя исходного документа
}

// Chunker - интерфейс для всех типов chunker'ов
type Chunker interface {
	// Chunk разбивает контент на чанки
	Chunk(content, source string) ([]Chunk, error)

	// Name возвращает название chunker'а для логирования
	Name() string
}

// Config содержит параметры chunker'а
type Config struct {
	WindowSize int // Размер окна в символах (runes)
}
