package routes

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"glrssign/internal/agreement"
	"glrssign/internal/export"
	"glrssign/internal/notify"
)

// statusFor maps a domain error to its HTTP status. Zero means unexpected.
func statusFor(err error) int {
	var (
		validation agreement.ValidationErrors
		turn       *agreement.NotYourTurnError
		terminal   *agreement.AlreadyTerminalError
		unknown    *agreement.UnknownFieldError
		incomplete *agreement.IncompleteRequiredFieldsError
		queue      *notify.QueueError
	)
	switch {
	case errors.As(err, &validation), errors.Is(err, agreement.ErrInvalidExpiry):
		return http.StatusBadRequest
	case errors.As(err, &unknown):
		return http.StatusForbidden
	case errors.Is(err, agreement.ErrNotFound), errors.Is(err, agreement.ErrUnknownSigner),
		errors.Is(err, export.ErrNoArtifact), errors.Is(err, notify.ErrNoToken):
		return http.StatusNotFound
	case errors.As(err, &turn), errors.As(err, &terminal),
		errors.Is(err, agreement.ErrAlreadySigned), errors.Is(err, export.ErrNotCompleted):
		return http.StatusConflict
	case errors.Is(err, agreement.ErrExpired), errors.Is(err, agreement.ErrTokenRedeemed):
		return http.StatusGone
	case errors.As(err, &incomplete), errors.Is(err, notify.ErrNoEmail):
		return http.StatusUnprocessableEntity
	case errors.Is(err, agreement.ErrPersistence), errors.As(err, &queue):
		return http.StatusServiceUnavailable
	}
	return 0
}

// publicMessage drops the package prefix from a domain error message.
// Storage and mail queue failures wrap driver errors, so only their fixed
// text is shown.
func publicMessage(err error) string {
	var queue *notify.QueueError
	switch {
	case errors.Is(err, agreement.ErrPersistence):
		err = agreement.ErrPersistence
	case errors.As(err, &queue):
		return "Could not queue email, please try again"
	}
	msg := err.Error()
	for _, prefix := range []string{"agreement: ", "notify: ", "export: "} {
		msg = strings.TrimPrefix(msg, prefix)
	}
	if msg == "" {
		return msg
	}
	return strings.ToUpper(msg[:1]) + msg[1:]
}

func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == 0 {
		log.Printf("%s %s: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	if status == http.StatusServiceUnavailable {
		log.Printf("%s %s: %v", c.Request.Method, c.FullPath(), err)
	}

	body := gin.H{"error": publicMessage(err)}
	var (
		validation agreement.ValidationErrors
		incomplete *agreement.IncompleteRequiredFieldsError
		unknown    *agreement.UnknownFieldError
	)
	switch {
	case errors.As(err, &validation):
		body["error"] = "Please correct the highlighted fields"
		body["fields"] = validation
	case errors.As(err, &incomplete):
		body["fields"] = incomplete.Fields
	case errors.As(err, &unknown):
		body["fields"] = unknown.Fields
	}
	c.JSON(status, body)
}
