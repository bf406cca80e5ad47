package domain

import "errors"

// ErrExternalFetch означает, что запрос к Last.fm не удался или вернул
// некорректные данные. Внутри вызова не ретраится: закэшированные данные
// остаются валидными до следующего успешного обновления.
var ErrExternalFetch = errors.New("external fetch failed")

// ErrValidation означает некорректные параметры периода. Проверяется до
// любых сетевых вызовов.
var ErrValidation = errors.New("validation failed")

// ErrPersistence означает недоступность хранилища. Прерывает вычисление,
// частичное состояние не записывается.
var ErrPersistence = errors.New("persistence failed")

// ErrRoleOperation означает сбой операции с ролью. Логируется и не
// прерывает доставку лидерборда.
var ErrRoleOperation = errors.New("role operation failed")

// ErrUserNotFound возвращается, если участник не привязал Last.fm.
var ErrUserNotFound = errors.New("user not found")
