package game

import "errors"

var (
	// ErrSessionNotFound сессия отсутствует в хранилище
	ErrSessionNotFound = errors.New("game: session not found")
	// ErrAreaNotFound зона отсутствует в графе сессии
	ErrAreaNotFound = errors.New("game: area not found")
	// ErrInvalidRequest недопустимые входные данные (тема, направление, dt)
	ErrInvalidRequest = errors.New("game: invalid request")
	// ErrGenerationInProgress для этого выхода уже выполняется генерация
	ErrGenerationInProgress = errors.New("game: generation already in progress")
)
