package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"fintrack/internal/apperr"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func TestCodeOf(t *testing.T) {
	require.Equal(t, CodeParamError, CodeOf(apperr.Validation("name", "empty")))
	require.Equal(t, CodeNotFound, CodeOf(fmt.Errorf("load: %w", apperr.NotFound("rule", 1))))
	require.Equal(t, CodeConflict, CodeOf(apperr.Conflict("extraction", 1, "approved")))
	require.Equal(t, CodeServerError, CodeOf(errors.New("db down")))
}

func TestFromErrorHidesInternalErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)

	for _, tt := range []struct {
		err  error
		code int
		msg  string
	}{
		{apperr.NotFound("rule", 9), CodeNotFound, "rule 9 not found"},
		{errors.New("dial tcp: refused"), CodeServerError, "internal error"},
	} {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		FromError(c, tt.err)

		require.Equal(t, http.StatusOK, w.Code)
		var resp Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.Equal(t, tt.code, resp.Code)
		require.Equal(t, tt.msg, resp.Message)
	}
}
