package models

import "errors"

var (
	ErrInvalidParticipants          = errors.New("invalid participants")
	ErrConversationResolutionFailed = errors.New("conversation resolution failed")
	ErrHistoryFetchFailed           = errors.New("history fetch failed")
	ErrSendFailed                   = errors.New("send failed")
	ErrUploadFailed                 = errors.New("upload failed")
	ErrChannelUnavailable           = errors.New("channel unavailable")
	ErrMissingContext               = errors.New("missing session or conversation")
	ErrUnauthorized                 = errors.New("unauthorized")
)
