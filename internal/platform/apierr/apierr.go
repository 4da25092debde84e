// Package apierr は各パッケージ共通のエラーコードと HTTP レスポンスへの変換。
package apierr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	mysql "github.com/go-sql-driver/mysql"
)

type Code string

const (
	CodeInvalidArgument   Code = "INVALID_ARGUMENT"
	CodeNotFound          Code = "NOT_FOUND"
	CodeConflict          Code = "CONFLICT"
	CodeInsufficientStock Code = "INSUFFICIENT_STOCK"
	CodeUpstreamStore     Code = "UPSTREAM_STORE"
	CodeUnauthorized      Code = "UNAUTHORIZED"
	CodeForbidden         Code = "FORBIDDEN"
	CodeInternal          Code = "INTERNAL"
)

type APIError struct {
	Code    Code
	Message string
}

func (e *APIError) Error() string { return fmt.Sprintf("%s: %s", e.Code, e.Message) }

func Invalid(msg string) *APIError  { return &APIError{Code: CodeInvalidArgument, Message: msg} }
func NotFound(msg string) *APIError { return &APIError{Code: CodeNotFound, Message: msg} }
func Conflict(msg string) *APIError { return &APIError{Code: CodeConflict, Message: msg} }
func Internal(msg string) *APIError { return &APIError{Code: CodeInternal, Message: msg} }
func Upstream(msg string) *APIError { return &APIError{Code: CodeUpstreamStore, Message: msg} }

func InsufficientStock(msg string) *APIError {
	return &APIError{Code: CodeInsufficientStock, Message: msg}
}

func Unauthorized(msg string) *APIError { return &APIError{Code: CodeUnauthorized, Message: msg} }
func Forbidden(msg string) *APIError    { return &APIError{Code: CodeForbidden, Message: msg} }

func Invalidf(format string, args ...any) *APIError { return Invalid(fmt.Sprintf(format, args...)) }

// Is reports whether err (or anything it wraps) is an APIError with the given code.
func Is(err error, code Code) bool {
	var api *APIError
	return errors.As(err, &api) && api.Code == code
}

func HTTPStatus(err error) int {
	var api *APIError
	if errors.As(err, &api) {
		switch api.Code {
		case CodeInvalidArgument:
			return http.StatusBadRequest
		case CodeNotFound:
			return http.StatusNotFound
		case CodeConflict, CodeInsufficientStock:
			return http.StatusConflict
		case CodeUnauthorized:
			return http.StatusUnauthorized
		case CodeForbidden:
			return http.StatusForbidden
		case CodeUpstreamStore:
			return http.StatusBadGateway
		default:
			return http.StatusInternalServerError
		}
	}
	return http.StatusInternalServerError
}

type errorDTO struct {
	Error struct {
		Code    Code   `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func body(code Code, msg string) errorDTO {
	var e errorDTO
	e.Error.Code = code
	e.Error.Message = msg
	return e
}

// Body は err をレスポンス用DTOに変換する。APIError 以外は中身を出さない。
func Body(err error) errorDTO {
	var api *APIError
	if errors.As(err, &api) {
		return body(api.Code, api.Message)
	}
	return body(CodeInternal, "internal error")
}

// Abort は以降のハンドラを止めてエラーを返す（ミドルウェア用）
func Abort(c *gin.Context, err error) {
	c.AbortWithStatusJSON(HTTPStatus(err), Body(err))
}

// Write は err に対応するステータスとボディを返し、gin のエラーにも積む（アクセスログ用）
func Write(c *gin.Context, err error) {
	_ = c.Error(err)
	c.JSON(HTTPStatus(err), Body(err))
}

// BadRequest はバインド失敗など handler 側の 400 用
func BadRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, body(CodeInvalidArgument, msg))
}

// MySQL error numbers
const (
	mysqlDuplicateKey    = 1062
	mysqlRowIsReferenced = 1451
	mysqlNoReferencedRow = 1452
	mysqlOutOfRange      = 1264
	mysqlCheckViolated   = 3819
)

// MySQLMessages は FromMySQL で使う文言。空なら既定文言。
type MySQLMessages struct {
	Duplicate  string
	Referenced string
	MissingRef string
}

// FromMySQL はドライバのエラー番号を APIError に振り分ける。
// 該当しない MySQLError は UPSTREAM_STORE、MySQL 以外のエラーはそのまま返す。
func FromMySQL(err error, m MySQLMessages) error {
	if err == nil {
		return nil
	}
	var me *mysql.MySQLError
	if !errors.As(err, &me) {
		return err
	}
	switch me.Number {
	case mysqlDuplicateKey:
		return Conflict(orDefault(m.Duplicate, "duplicate key"))
	case mysqlRowIsReferenced:
		return Conflict(orDefault(m.Referenced, "row is still referenced"))
	case mysqlNoReferencedRow:
		return Invalid(orDefault(m.MissingRef, "referenced row does not exist"))
	case mysqlOutOfRange, mysqlCheckViolated:
		return Invalid(me.Message)
	default:
		return Upstream(me.Message)
	}
}

func orDefault(s, d string) string {
	if s == "" {
		return d
	}
	return s
}
