package apierr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	mysql "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid", Invalid("x"), http.StatusBadRequest},
		{"not found", NotFound("x"), http.StatusNotFound},
		{"conflict", Conflict("x"), http.StatusConflict},
		{"insufficient", InsufficientStock("x"), http.StatusConflict},
		{"upstream", Upstream("x"), http.StatusBadGateway},
		{"internal", Internal("x"), http.StatusInternalServerError},
		{"wrapped", fmt.Errorf("ctx: %w", NotFound("x")), http.StatusNotFound},
		{"plain", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}

func TestBody_HidesUnknownErrors(t *testing.T) {
	b := Body(errors.New("dial tcp 10.0.0.1:3306: connection refused"))
	assert.Equal(t, CodeInternal, b.Error.Code)
	assert.Equal(t, "internal error", b.Error.Message)

	b = Body(InsufficientStock("not enough"))
	assert.Equal(t, CodeInsufficientStock, b.Error.Code)
	assert.Equal(t, "not enough", b.Error.Message)
}

func TestFromMySQL(t *testing.T) {
	msgs := MySQLMessages{Duplicate: "name already exists"}

	err := FromMySQL(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}, msgs)
	assert.True(t, Is(err, CodeConflict))
	assert.Equal(t, "CONFLICT: name already exists", err.Error())

	err = FromMySQL(fmt.Errorf("exec: %w", &mysql.MySQLError{Number: 1451}), msgs)
	assert.True(t, Is(err, CodeConflict))

	err = FromMySQL(&mysql.MySQLError{Number: 1452}, msgs)
	assert.True(t, Is(err, CodeInvalidArgument))

	err = FromMySQL(&mysql.MySQLError{Number: 1205, Message: "Lock wait timeout exceeded"}, msgs)
	assert.True(t, Is(err, CodeUpstreamStore))

	plain := errors.New("plain")
	assert.Same(t, plain, FromMySQL(plain, msgs))
	assert.NoError(t, FromMySQL(nil, msgs))
}

func TestWrite(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	Write(c, NotFound("unit type not found"))

	require.Equal(t, http.StatusNotFound, w.Code)
	var got struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "NOT_FOUND", got.Error.Code)
	assert.Equal(t, "unit type not found", got.Error.Message)
	assert.Len(t, c.Errors, 1)
}
