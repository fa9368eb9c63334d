package api

import (
	"log"
	"strconv"

	"github.com/gofiber/fiber/v2"
)

// ErrorHandler is the fiber-wide error translator. Everything a handler or
// middleware returns funnels through here and leaves as JSON with an "error"
// field; internals never reach the response body.
func ErrorHandler(c *fiber.Ctx, err error) error {
	if apiError, ok := err.(Error); ok {
		return c.Status(apiError.Code).JSON(apiError)
	}
	if rlError, ok := err.(RateLimitError); ok {
		c.Set(fiber.HeaderRetryAfter, strconv.Itoa(rlError.RetryAfterSec))
		return c.Status(fiber.StatusTooManyRequests).JSON(rlError)
	}
	if valError, ok := err.(ValidationError); ok {
		return c.Status(valError.Status).JSON(valError)
	}
	if fibError, ok := err.(*fiber.Error); ok {
		return c.Status(fibError.Code).JSON(NewError(fibError.Code, fibError.Message))
	}

	log.Printf("request failed: %v", err)
	return c.Status(fiber.StatusInternalServerError).JSON(NewError(fiber.StatusInternalServerError, "internal error"))
}

type Error struct {
	Code    int    `json:"code"`
	Message string `json:"error"`
}

// Error implements the error interface
func (e Error) Error() string {
	return e.Message
}

func NewError(code int, err string) Error {
	return Error{
		Code:    code,
		Message: err,
	}
}

type ValidationError struct {
	Status  int               `json:"status"`
	Message string            `json:"error"`
	Errors  map[string]string `json:"errors"`
}

func (e ValidationError) Error() string {
	return e.Message
}

func NewValidationError(errors map[string]string) ValidationError {
	return ValidationError{
		Status:  fiber.StatusBadRequest,
		Message: "validation failed",
		Errors:  errors,
	}
}

// RateLimitError carries the retry hint into both the body and the
// Retry-After header.
type RateLimitError struct {
	Message       string `json:"error"`
	RetryAfterSec int    `json:"retryAfterSec"`
}

func (e RateLimitError) Error() string {
	return e.Message
}

func NewRateLimitError(retryAfterSec int) RateLimitError {
	return RateLimitError{
		Message:       "rate limit exceeded",
		RetryAfterSec: retryAfterSec,
	}
}

func ErrBadRequest() Error {
	return Error{
		Code:    fiber.StatusBadRequest,
		Message: "invalid JSON request",
	}
}

func ErrUnAuthorized(msg string) Error {
	return Error{
		Code:    fiber.StatusUnauthorized,
		Message: msg,
	}
}

func ErrForbiddenOrigin() Error {
	return Error{
		Code:    fiber.StatusForbidden,
		Message: "origin not allowed",
	}
}

// ErrUpstream logs the real failure and hands the client a generic 503.
func ErrUpstream(err error) Error {
	if err != nil {
		log.Printf("upstream call failed: %v", err)
	}
	return Error{
		Code:    fiber.StatusServiceUnavailable,
		Message: "upstream service unavailable",
	}
}
