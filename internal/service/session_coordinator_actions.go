package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	apperrors "github.com/alungalsinan/groot-scribe-studio/internal/errors"
	"github.com/alungalsinan/groot-scribe-studio/internal/observability/metrics"
	"github.com/alungalsinan/groot-scribe-studio/internal/observability/notify"
	"github.com/alungalsinan/groot-scribe-studio/internal/ports"
	"github.com/go-playground/validator/v10"
)

// ErrSignUpUnsupported is returned by backends that cannot register accounts.
var ErrSignUpUnsupported = ports.ErrSignUpUnsupported

// signInInput only checks presence; the backend decides what a valid
// identifier is.
type signInInput struct {
	Email    string `validate:"required"`
	Password string `validate:"required"`
}

type signUpInput struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required,min=6"`
	Name     string `validate:"required,max=120"`
}

// SignIn authenticates with email and password. The resulting SIGNED_IN event
// drives the identity change; SignIn itself only reports the outcome. A
// rejected sign-in returns the backend error unchanged.
func (c *Coordinator) SignIn(ctx context.Context, email, password string) error {
	in := signInInput{Email: strings.TrimSpace(email), Password: password}
	return c.runAction(ctx, action{
		name:         "sign_in",
		failureTitle: "Sign In Failed",
		fallback:     "Failed to sign in",
		success: notify.Notification{
			Title:       "Welcome back!",
			Description: "Successfully signed in",
		},
		input: in,
		call: func(ctx context.Context) error {
			return c.auth.SignInWithPassword(ctx, in.Email, in.Password)
		},
	})
}

// SignUp registers a new account. The backend sends a verification email;
// the identity is not signed in until it is confirmed.
func (c *Coordinator) SignUp(ctx context.Context, email, password, name string) error {
	in := signUpInput{Email: strings.TrimSpace(email), Password: password, Name: strings.TrimSpace(name)}
	return c.runAction(ctx, action{
		name:         "sign_up",
		failureTitle: "Sign Up Failed",
		fallback:     "Failed to create account",
		success: notify.Notification{
			Title:       "Account Created",
			Description: "Please check your email to verify your account.",
		},
		input: in,
		call: func(ctx context.Context) error {
			return c.auth.SignUp(ctx, in.Email, in.Password, ports.SignUpOptions{
				RedirectTo: c.redirectURL,
				Metadata:   map[string]any{"name": in.Name},
			})
		},
	})
}

// SignOut ends the backend session. State is cleared by the SIGNED_OUT event.
func (c *Coordinator) SignOut(ctx context.Context) error {
	return c.runAction(ctx, action{
		name:         "sign_out",
		failureTitle: "Sign Out Failed",
		fallback:     "Failed to sign out",
		success: notify.Notification{
			Title:       "Goodbye!",
			Description: "Successfully signed out",
		},
		call: c.auth.SignOut,
	})
}

type action struct {
	name         string
	failureTitle string
	fallback     string
	success      notify.Notification
	input        any
	call         func(ctx context.Context) error
}

func (c *Coordinator) runAction(ctx context.Context, a action) error {
	if !c.update(func() bool {
		c.actions++
		c.state.Error = ""
		return true
	}) {
		return ErrClosed
	}
	defer c.update(func() bool {
		c.actions--
		return true
	})

	start := c.now()
	err := c.validateInput(a.input)
	if err == nil {
		err = a.call(ctx)
	}
	duration := c.now().Sub(start)

	if err != nil {
		msg := apperrors.UserMessage(err)
		if strings.TrimSpace(msg) == "" {
			msg = a.fallback
		}
		c.logger.WarnContext(ctx, "auth action failed", "action", a.name, "error", err)
		c.update(func() bool {
			c.state.Error = msg
			return true
		})
		c.notify(ctx, notify.Notification{
			Title:       a.failureTitle,
			Description: msg,
			Variant:     notify.VariantDestructive,
		})
		metrics.EmitAuth(c.metrics, metrics.AuthMetric{Name: a.name, Result: metrics.ResultError, Duration: duration, Err: err})
		return err
	}

	c.logger.InfoContext(ctx, "auth action succeeded", "action", a.name)
	c.notify(ctx, a.success)
	metrics.EmitAuth(c.metrics, metrics.AuthMetric{Name: a.name, Result: metrics.ResultSuccess, Duration: duration})
	return nil
}

func (c *Coordinator) validateInput(in any) error {
	if in == nil {
		return nil
	}
	err := c.validate.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return apperrors.Wrap(err, apperrors.ErrCodeValidation, "Invalid input")
	}
	fe := verrs[0]
	field := strings.ToLower(fe.Field())
	return apperrors.ValidationField(field, validationMessage(field, fe.Tag(), fe.Param()))
}

func validationMessage(field, tag, param string) string {
	switch tag {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "email":
		return "email must be a valid email address"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, param)
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, param)
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}
