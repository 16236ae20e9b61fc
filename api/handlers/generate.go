package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/BaSui01/structgen/api"
	"github.com/BaSui01/structgen/structured"
	"github.com/BaSui01/structgen/types"
	"github.com/coder/websocket"
	"go.uber.org/zap"
)

// =============================================================================
// 🧩 结构化生成 Handler
// =============================================================================

// maxRequestBytes 请求体上限
const maxRequestBytes = 1 << 20

// Generator 是 handler 依赖的生成管线
type Generator interface {
	Generate(ctx context.Context, req *structured.Request) (*structured.Outcome, error)
	Stream(ctx context.Context, req *structured.Request) (<-chan structured.Fragment, error)
}

// GenerateHandler 结构化生成接口处理器
type GenerateHandler struct {
	gen       Generator
	validator *RequestValidator
	wsOrigins []string
	logger    *zap.Logger
}

// NewGenerateHandler 创建生成处理器。wsOrigins 是 WebSocket 允许的跨域来源模式。
func NewGenerateHandler(gen Generator, validator *RequestValidator, wsOrigins []string, logger *zap.Logger) *GenerateHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validator == nil {
		validator = MustRequestValidator()
	}
	return &GenerateHandler{
		gen:       gen,
		validator: validator,
		wsOrigins: wsOrigins,
		logger:    logger.With(zap.String("component", "generate_handler")),
	}
}

// HandleGenerate 处理 POST /generate_structured
func (h *GenerateHandler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}
	req, apiErr := h.readRequest(w, r)
	if apiErr != nil {
		WriteError(w, apiErr, h.logger)
		return
	}

	out, err := h.gen.Generate(r.Context(), req)
	if err != nil {
		WriteError(w, internalError(err), h.logger)
		return
	}
	WriteJSON(w, http.StatusOK, api.FromOutcome(out))
}

// HandleStream 处理 POST /generate_structured_stream，以 SSE 逐片段转发原始输出
func (h *GenerateHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}
	req, apiErr := h.readRequest(w, r)
	if apiErr != nil {
		WriteError(w, apiErr, h.logger)
		return
	}
	if !req.Stream {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest,
			"Stream must be true for streaming endpoint", h.logger)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		WriteError(w, internalError(errors.New("streaming not supported")), h.logger)
		return
	}

	fragments, err := h.gen.Stream(r.Context(), req)
	if err != nil {
		var ge *structured.GenerationError
		if errors.As(err, &ge) {
			WriteJSON(w, http.StatusOK, api.FromOutcome(ge.Outcome))
			return
		}
		WriteError(w, internalError(err), h.logger)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for frag := range fragments {
		if frag.Err != nil {
			payload, _ := json.Marshal(api.StreamError{Error: frag.Err.Error()})
			writeSSEData(w, string(payload))
			flusher.Flush()
			continue
		}
		writeSSEData(w, frag.Text)
		flusher.Flush()
	}
}

// writeSSEData 写一个 SSE 事件；含换行的片段拆成多行 data，客户端按换行拼回
func writeSSEData(w io.Writer, text string) {
	var b strings.Builder
	for _, line := range strings.Split(text, "\n") {
		b.WriteString("data: ")
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString("\n")
	_, _ = io.WriteString(w, b.String())
}

// HandleWebSocket 处理 GET /generate_structured_ws。
// 客户端发送一条请求消息，服务端逐片段回写文本消息后正常关闭；
// 类型化失败以一条 GenerationResponse 消息返回。
func (h *GenerateHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.wsOrigins})
	if err != nil {
		h.logger.Debug("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(maxRequestBytes)

	readCtx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	_, body, err := conn.Read(readCtx)
	cancel()
	if err != nil {
		h.logger.Debug("websocket read failed", zap.Error(err))
		return
	}

	// 之后不再读取；对端关闭时 ctx 被取消，上游随之释放
	ctx := conn.CloseRead(r.Context())

	req, apiErr := h.decode(body)
	if apiErr != nil {
		h.writeWSFinal(ctx, conn, api.ErrorResponse(apiErr.Code, apiErr.Message))
		return
	}

	fragments, err := h.gen.Stream(ctx, req)
	if err != nil {
		var ge *structured.GenerationError
		if errors.As(err, &ge) {
			h.writeWSFinal(ctx, conn, api.FromOutcome(ge.Outcome))
			return
		}
		h.logger.Error("websocket stream failed", zap.Error(err))
		_ = conn.Close(websocket.StatusInternalError, "internal error")
		return
	}

	for frag := range fragments {
		if frag.Err != nil {
			payload, _ := json.Marshal(api.StreamError{Error: frag.Err.Error()})
			_ = conn.Write(ctx, websocket.MessageText, payload)
			_ = conn.Close(websocket.StatusInternalError, "upstream error")
			return
		}
		if err := conn.Write(ctx, websocket.MessageText, []byte(frag.Text)); err != nil {
			h.logger.Debug("websocket write failed", zap.Error(err))
			return
		}
	}
	_ = conn.Close(websocket.StatusNormalClosure, "done")
}

func (h *GenerateHandler) writeWSFinal(ctx context.Context, conn *websocket.Conn, resp api.GenerationResponse) {
	payload, err := json.Marshal(resp)
	if err == nil {
		_ = conn.Write(ctx, websocket.MessageText, payload)
	}
	_ = conn.Close(websocket.StatusNormalClosure, "done")
}

// =============================================================================
// 🔧 请求解码
// =============================================================================

func (h *GenerateHandler) readRequest(w http.ResponseWriter, r *http.Request) (*structured.Request, *types.Error) {
	if r.Body == nil {
		return nil, types.NewError(types.ErrInvalidRequest, "request body is empty")
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, types.NewError(types.ErrInvalidRequest, "request body too large").
				WithHTTPStatus(http.StatusRequestEntityTooLarge)
		}
		return nil, types.NewError(types.ErrInvalidRequest, "failed to read request body").WithCause(err)
	}
	return h.decode(body)
}

func (h *GenerateHandler) decode(body []byte) (*structured.Request, *types.Error) {
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil, types.NewError(types.ErrInvalidRequest, "request body is empty")
	}
	if err := h.validator.Validate(body); err != nil {
		return nil, types.NewError(types.ErrInvalidRequest, err.Error()).WithCause(err)
	}
	var req api.GenerationRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, types.NewError(types.ErrInvalidRequest, "invalid JSON body").WithCause(err)
	}
	return req.ToStructured(), nil
}
