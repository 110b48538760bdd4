package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/gorillamux"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"halcyon.studio/cinema/internal/api/openapi"
	apperrors "halcyon.studio/cinema/internal/pkg/errors"
	"halcyon.studio/cinema/internal/pkg/logger"
)

const openAPIResponseValidationMessage = "response does not conform to OpenAPI contract"

// MustOpenAPIValidator creates an OpenAPI runtime validator middleware and panics on setup failure.
func MustOpenAPIValidator(basePath string) gin.HandlerFunc {
	mw, err := NewOpenAPIValidator(basePath)
	if err != nil {
		panic(fmt.Sprintf("init openapi validator: %v", err))
	}
	return mw
}

// NewOpenAPIValidator validates requests and responses against the
// embedded contract. Streaming responses are passed through unbuffered.
func NewOpenAPIValidator(basePath string) (gin.HandlerFunc, error) {
	doc, err := openapi.Load()
	if err != nil {
		return nil, err
	}

	router, err := gorillamux.NewRouter(doc)
	if err != nil {
		return nil, fmt.Errorf("create swagger router: %w", err)
	}

	basePath = normalizeBasePath(basePath)

	return func(c *gin.Context) {
		path, ok := contractPath(basePath, c.Request.URL.Path)
		if !ok {
			c.Next()
			return
		}
		route, pathParams, err := findContractRoute(router, c.Request, path)
		if err != nil {
			if errors.Is(err, routers.ErrPathNotFound) || isRouteMiss(err) {
				c.Next()
				return
			}
			abortWithOpenAPIError(c, http.StatusBadRequest, apperrors.CodeInvalidRequestField, err.Error())
			return
		}

		reqValidationInput := &openapi3filter.RequestValidationInput{
			Request:    c.Request,
			PathParams: pathParams,
			Route:      route,
			Options:    &openapi3filter.Options{AuthenticationFunc: skipAuthentication},
		}
		if err := openapi3filter.ValidateRequest(c.Request.Context(), reqValidationInput); err != nil {
			abortWithOpenAPIError(c, http.StatusBadRequest, apperrors.CodeValidationFailed, requestErrorMessage(err))
			return
		}

		if streamsResponse(route) {
			c.Next()
			return
		}

		original := c.Writer
		buffered := newBufferedResponseWriter(original)
		c.Writer = buffered
		c.Next()
		c.Writer = original

		// Errors are rendered by ErrorHandler further out.
		if len(c.Errors) > 0 && !buffered.Written() {
			return
		}

		respValidationInput := &openapi3filter.ResponseValidationInput{
			RequestValidationInput: reqValidationInput,
			Status:                 buffered.Status(),
			Header:                 buffered.Header().Clone(),
			Options:                &openapi3filter.Options{AuthenticationFunc: skipAuthentication},
		}
		if buffered.Size() > 0 {
			respValidationInput.SetBodyBytes(buffered.body.Bytes())
		}

		if err := openapi3filter.ValidateResponse(c.Request.Context(), respValidationInput); err != nil {
			logger.Error("OpenAPI response validation failed",
				zap.String("method", c.Request.Method),
				zap.String("path", c.Request.URL.Path),
				zap.Int("status", buffered.Status()),
				zap.Error(err),
			)
			buffered.ResetJSON(http.StatusInternalServerError, map[string]string{
				"code":    "OPENAPI_RESPONSE_INVALID",
				"message": openAPIResponseValidationMessage,
			})
		}

		if _, err := buffered.FlushToOriginal(); err != nil {
			logger.Warn("failed to flush buffered response",
				zap.String("method", c.Request.Method),
				zap.String("path", c.Request.URL.Path),
				zap.Error(err),
			)
		}
	}, nil
}

// requestErrorMessage keeps the first line of a kin-openapi error; the
// rest dumps the schema.
func requestErrorMessage(err error) string {
	msg := err.Error()
	if i := strings.IndexByte(msg, '\n'); i > 0 {
		msg = msg[:i]
	}
	return msg
}

func streamsResponse(route *routers.Route) bool {
	if route == nil || route.Operation == nil || route.Operation.Responses == nil {
		return false
	}
	ok := route.Operation.Responses.Value("200")
	if ok == nil || ok.Value == nil {
		return false
	}
	_, stream := ok.Value.Content["text/event-stream"]
	return stream
}

// Session checks run in their own middleware.
func skipAuthentication(context.Context, *openapi3filter.AuthenticationInput) error {
	return nil
}

func normalizeBasePath(basePath string) string {
	basePath = strings.Trim(strings.TrimSpace(basePath), "/")
	if basePath == "" {
		return ""
	}
	return "/" + basePath
}

// contractPath maps a request path onto the contract, whose paths are
// relative to basePath. Requests outside basePath are not validated.
func contractPath(basePath, path string) (string, bool) {
	if basePath == "" {
		return path, true
	}
	if path == basePath {
		return "/", true
	}
	rest, ok := strings.CutPrefix(path, basePath+"/")
	if !ok {
		return "", false
	}
	return "/" + rest, true
}

// findContractRoute looks the route up on a copy of the request so the
// original URL reaches the handlers untouched.
func findContractRoute(router routers.Router, req *http.Request, path string) (*routers.Route, map[string]string, error) {
	lookup := *req
	u := *req.URL
	u.Path = path
	u.RawPath = ""
	lookup.URL = &u
	return router.FindRoute(&lookup)
}

func isRouteMiss(err error) bool {
	var routeErr *routers.RouteError
	return errors.As(err, &routeErr) && strings.Contains(routeErr.Reason, routers.ErrPathNotFound.Error())
}

func abortWithOpenAPIError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"code":    code,
		"message": message,
	})
}

type bufferedResponseWriter struct {
	gin.ResponseWriter
	body        bytes.Buffer
	statusCode  int
	wroteHeader bool
	size        int
}

func newBufferedResponseWriter(w gin.ResponseWriter) *bufferedResponseWriter {
	return &bufferedResponseWriter{
		ResponseWriter: w,
		statusCode:     http.StatusOK,
	}
}

func (w *bufferedResponseWriter) WriteHeader(code int) {
	if w.wroteHeader {
		return
	}
	w.statusCode = code
	w.wroteHeader = true
}

func (w *bufferedResponseWriter) WriteHeaderNow() {
	if !w.wroteHeader {
		w.wroteHeader = true
	}
}

func (w *bufferedResponseWriter) Write(data []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	n, err := w.body.Write(data)
	w.size += n
	return n, err
}

func (w *bufferedResponseWriter) WriteString(s string) (int, error) {
	return w.Write([]byte(s))
}

func (w *bufferedResponseWriter) Status() int {
	if !w.wroteHeader {
		return http.StatusOK
	}
	return w.statusCode
}

func (w *bufferedResponseWriter) Size() int {
	return w.size
}

func (w *bufferedResponseWriter) Written() bool {
	return w.wroteHeader
}

func (w *bufferedResponseWriter) ResetJSON(statusCode int, payload map[string]string) {
	w.statusCode = statusCode
	w.wroteHeader = true
	w.body.Reset()
	w.size = 0
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	data, err := json.Marshal(payload)
	if err != nil {
		data = []byte(`{"code":"OPENAPI_RESPONSE_INVALID","message":"response does not conform to OpenAPI contract"}`)
	}
	_, _ = w.Write(data)
}

func (w *bufferedResponseWriter) FlushToOriginal() (int, error) {
	w.ResponseWriter.WriteHeader(w.Status())
	if w.body.Len() == 0 {
		return 0, nil
	}
	return w.ResponseWriter.Write(w.body.Bytes())
}
