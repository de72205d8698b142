package entity

import apperrors "github.com/ngoclaw/aichat/pkg/errors"

var (
	// User errors
	ErrInvalidUserID   = apperrors.NewInvalidInputError("invalid user id")
	ErrInvalidUsername = apperrors.NewInvalidInputError("username must be 3-50 characters")
	ErrInvalidEmail    = apperrors.NewInvalidInputError("invalid email address")
	ErrUserInactive    = apperrors.NewForbiddenError("user account is deactivated")

	// Conversation errors
	ErrInvalidConversationID = apperrors.NewInvalidInputError("invalid conversation id")
	ErrInvalidTitle          = apperrors.NewInvalidInputError("title must be 1-200 characters")
	ErrShareWithOwner        = apperrors.NewInvalidInputError("cannot share a conversation with its owner")
	ErrInvalidTag            = apperrors.NewInvalidInputError("tag must not be empty")

	// Message errors
	ErrInvalidMessageID  = apperrors.NewInvalidInputError("invalid message id")
	ErrEmptyContent      = apperrors.NewInvalidInputError("message content must not be empty")
	ErrContentTooLong    = apperrors.NewInvalidInputError("message content exceeds 10000 characters")
	ErrMetadataMismatch  = apperrors.NewInvalidInputError("metadata does not match message type")
	ErrMissingSenderID   = apperrors.NewInvalidInputError("user messages require a sender id")
	ErrMessageDeleted    = apperrors.NewInvalidInputError("message is deleted")
	ErrMessageNotDeleted = apperrors.NewInvalidInputError("message is not deleted")
	ErrEditAIMessage     = apperrors.NewInvalidInputError("AI messages cannot be edited")
	ErrInvalidEmoji      = apperrors.NewInvalidInputError("emoji must not be empty")
	ErrAccessDenied      = apperrors.NewForbiddenError("access denied")
)
