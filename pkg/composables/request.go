package composables

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/form"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/lms-admin/pkg/constants"
	"github.com/iota-uz/lms-admin/pkg/logging"
)

var ErrNoActor = errors.New("actor not found in context")

var formDecoder = form.NewDecoder()

// UseForm decodes the request form into v, a pointer to a struct with form tags.
func UseForm[T comparable](v T, r *http.Request) (T, error) {
	if err := r.ParseForm(); err != nil {
		return v, err
	}
	return v, formDecoder.Decode(v, r.Form)
}

func WithLogger(ctx context.Context, logger *logrus.Entry) context.Context {
	return context.WithValue(ctx, constants.LoggerKey, logger)
}

// UseLogger returns the logger bound to ctx, or a silent entry when there is none.
func UseLogger(ctx context.Context) *logrus.Entry {
	switch typed := ctx.Value(constants.LoggerKey).(type) {
	case *logrus.Entry:
		return typed
	case *logrus.Logger:
		return logrus.NewEntry(typed)
	default:
		return logging.NopEntry()
	}
}

// WithActor binds the id of the user performing the request.
func WithActor(ctx context.Context, actorID int64) context.Context {
	return context.WithValue(ctx, constants.ActorKey, actorID)
}

func UseActor(ctx context.Context) (int64, error) {
	id, ok := ctx.Value(constants.ActorKey).(int64)
	if !ok {
		return 0, ErrNoActor
	}
	return id, nil
}

func WithRequestStart(ctx context.Context, start time.Time) context.Context {
	return context.WithValue(ctx, constants.RequestStart, start)
}

func UseRequestStart(ctx context.Context) (time.Time, bool) {
	t, ok := ctx.Value(constants.RequestStart).(time.Time)
	return t, ok
}
