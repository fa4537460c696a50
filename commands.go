package identity

import (
	"github.com/goliatone/go-command"
)

// The handlers in this package satisfy the go-command contracts so
// applications can register them on a dispatcher next to their own
// commands instead of calling Execute directly.
var (
	_ command.Message = (*RegisterUserMessage)(nil)
	_ command.Message = (*VerifyEmailMessage)(nil)
	_ command.Message = (*ResendVerificationMessage)(nil)
	_ command.Message = (*InitializePasswordResetMessage)(nil)
	_ command.Message = (*FinalizePasswordResetMessage)(nil)
	_ command.Message = (*ChangePasswordMessage)(nil)

	_ command.Commander[RegisterUserMessage]            = (*RegisterUserHandler)(nil)
	_ command.Commander[VerifyEmailMessage]             = (*VerifyEmailHandler)(nil)
	_ command.Commander[ResendVerificationMessage]      = (*ResendVerificationHandler)(nil)
	_ command.Commander[InitializePasswordResetMessage] = (*InitializePasswordResetHandler)(nil)
	_ command.Commander[FinalizePasswordResetMessage]   = (*FinalizePasswordResetHandler)(nil)
	_ command.Commander[ChangePasswordMessage]          = (*ChangePasswordHandler)(nil)
)
