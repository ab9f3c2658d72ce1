package consts

import "errors"

var (
	ErrMailboxNotFound      = errors.New("mailbox not found")
	ErrMailboxAlreadyExists = errors.New("mailbox already exists")
	ErrMailboxInvalidName   = errors.New("invalid mailbox name")
	ErrMailboxNoInferiors   = errors.New("mailbox cannot have inferior names")
	ErrMailboxNotEmpty      = errors.New("mailbox not empty")
	ErrMailboxReadOnly      = errors.New("mailbox is read-only")
	ErrNoPermission         = errors.New("permission denied")
	ErrUserNotFound         = errors.New("user not found")
	ErrMessageNotFound      = errors.New("message not found")
	ErrQuotaExceeded        = errors.New("quota exceeded")
	ErrInternalError        = errors.New("internal error")

	ErrDBNotFound                = errors.New("not found")
	ErrDBUniqueViolation         = errors.New("unique violation")
	ErrDBCommitTransactionFailed = errors.New("commit failed")
	ErrDBBeginTransactionFailed  = errors.New("start transaction failed")
	ErrDBInsertFailed            = errors.New("insert failed")
)
