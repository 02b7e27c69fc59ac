package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docchat/internal/ai"
	appErr "github.com/xxxsen/docchat/internal/pkg/errors"
	"github.com/xxxsen/docchat/internal/prompt"
	"github.com/xxxsen/docchat/internal/retrieval"
	"github.com/xxxsen/docchat/internal/router"
)

const (
	BackendAll     = "all"
	BackendAzure   = "azure"
	BackendOpenAI  = "open_ai"
	compareHeading = "# 多模型对比结果"
)

// Replies returned instead of errors when a document chat cannot proceed.
const (
	MsgNoDocument      = "无文档信息，请先上传一份文档后再提问。"
	MsgIndexLoadFailed = "文档向量加载失败，请重新上传文档。"
	MsgNoContext       = "未找到相关内容，请尝试其他问题。"
)

type ChatReply struct {
	Text        string `json:"text"`
	TotalTokens int    `json:"tokens"`
}

type ChatService struct {
	prompts    prompt.Table
	router     *router.Router
	selfHosted ai.ICompleter
	docs       *DocumentService
	assembler  *retrieval.Assembler
	timeout    time.Duration
}

func NewChatService(prompts prompt.Table, r *router.Router, selfHosted ai.ICompleter, docs *DocumentService, assembler *retrieval.Assembler, timeout time.Duration) *ChatService {
	return &ChatService{
		prompts:    prompts,
		router:     r,
		selfHosted: selfHosted,
		docs:       docs,
		assembler:  assembler,
		timeout:    timeout,
	}
}

// Respond sends the task prompt for input to backend. "all" asks the
// self-hosted model and the azure backend and returns both answers; either
// failing fails the call.
func (s *ChatService) Respond(ctx context.Context, input, task, backend string) (*ChatReply, error) {
	p := s.prompts.Compose(task, input)
	logutil.GetLogger(ctx).Info("chat request",
		zap.String("backend", backend),
		zap.String("task", task),
		zap.Int("input_len", len([]rune(input))),
	)
	if backend != BackendAll {
		return s.complete(ctx, backend, p)
	}
	mem, err := s.complete(ctx, "", p)
	if err != nil {
		return nil, err
	}
	gpt, err := s.complete(ctx, BackendAzure, p)
	if err != nil {
		return nil, err
	}
	return &ChatReply{
		Text:        fmt.Sprintf("%s\n\n## MemectFinLLM\n%s\n\n## GPT\n%s", compareHeading, mem.Text, gpt.Text),
		TotalTokens: mem.TotalTokens + gpt.TotalTokens,
	}, nil
}

// ChatDocument answers query from the session's document. Missing state is
// reported through the reply text, not as an error.
func (s *ChatService) ChatDocument(ctx context.Context, sessionID, query, task, backend string) (*ChatReply, error) {
	logger := logutil.GetLogger(ctx).With(zap.String("session", sessionID), zap.String("backend", backend))
	doc, err := s.docs.SessionDocument(ctx, sessionID)
	switch {
	case errors.Is(err, appErr.ErrNotReady):
		return &ChatReply{Text: MsgNoDocument}, nil
	case appErr.IsNotReady(err):
		logger.Warn("load document index failed", zap.Error(err))
		return &ChatReply{Text: MsgIndexLoadFailed}, nil
	case err != nil:
		return nil, err
	}
	assembled, err := s.assembler.Assemble(ctx, query, doc)
	if err != nil {
		return s.assembleFailed(logger, err)
	}
	if assembled.Text == "" {
		return &ChatReply{Text: MsgNoContext, TotalTokens: assembled.Tokens}, nil
	}
	reply, err := s.complete(ctx, backend, documentPrompt(s.prompts, task, assembled.Text, query))
	if err != nil {
		return nil, err
	}
	logger.Debug("document chat answered", zap.Int("context_len", len([]rune(assembled.Text))))
	return &ChatReply{
		Text:        fmt.Sprintf("## %s 回复\n\n%s", strings.ToUpper(backend), reply.Text),
		TotalTokens: reply.TotalTokens + assembled.Tokens,
	}, nil
}

// assembleFailed maps retrieval errors. A query the index cannot be searched
// with is a backend condition, never a validation error of the request.
func (s *ChatService) assembleFailed(logger *zap.Logger, err error) (*ChatReply, error) {
	switch {
	case appErr.IsNotReady(err):
		return &ChatReply{Text: MsgIndexLoadFailed}, nil
	case errors.Is(err, ai.ErrUnavailable):
		return nil, fmt.Errorf("assemble context: %v: %w", err, appErr.ErrBackendUnavailable)
	case errors.Is(err, retrieval.ErrQueryMismatch), errors.Is(err, retrieval.ErrDimensionMismatch):
		logger.Warn("query embedding does not match document index", zap.Error(err))
	}
	return nil, fmt.Errorf("assemble context: %v: %w", err, appErr.ErrUpstream)
}

func documentPrompt(prompts prompt.Table, task, context, query string) string {
	p := prompts.Compose(task, context)
	if !strings.HasSuffix(p, "\n") {
		p += "\n"
	}
	return p + "Q:" + strings.TrimSpace(query) + "\nA:"
}

func (s *ChatService) routed(backend string) bool {
	return backend == BackendAzure || backend == BackendOpenAI || (s.router != nil && s.router.Handles(backend))
}

// complete dispatches to the router for hosted backends and to the
// self-hosted model for anything else.
func (s *ChatService) complete(ctx context.Context, backend, p string) (*ChatReply, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	var (
		out *ai.Completion
		err error
	)
	if s.routed(backend) {
		if s.router == nil {
			return nil, fmt.Errorf("backend %q: %w", backend, appErr.ErrBackendUnavailable)
		}
		handle, lerr := s.router.Load(ctx, backend)
		if lerr != nil {
			return nil, lerr
		}
		out, err = handle.Complete(ctx, p)
	} else {
		if s.selfHosted == nil {
			logutil.GetLogger(ctx).Warn("self-hosted backend not configured", zap.String("backend", backend))
			return nil, fmt.Errorf("self-hosted backend: %w", appErr.ErrBackendUnavailable)
		}
		out, err = s.selfHosted.Complete(ctx, p)
	}
	if err != nil {
		if errors.Is(err, ai.ErrUnavailable) {
			return nil, fmt.Errorf("backend %q: %w: %w", backend, err, appErr.ErrBackendUnavailable)
		}
		logutil.GetLogger(ctx).Error("completion failed", zap.String("backend", backend), zap.Error(err))
		return nil, fmt.Errorf("backend %q: %w: %w", backend, err, appErr.ErrUpstream)
	}
	return &ChatReply{Text: out.Text, TotalTokens: out.TotalTokens}, nil
}

// Example management works on the live handle. Adding loads backend first;
// reads and deletes only look at the handle already loaded.

func (s *ChatService) handle(ctx context.Context, backend string) (*router.ModelHandle, error) {
	if s.router == nil {
		return nil, appErr.ErrBackendUnavailable
	}
	if backend == "" {
		if h := s.router.Current(); h != nil {
			return h, nil
		}
		backend = BackendAzure
	}
	return s.router.Load(ctx, backend)
}

func (s *ChatService) AddExample(ctx context.Context, backend, input, output string) (*router.Example, error) {
	if strings.TrimSpace(input) == "" || strings.TrimSpace(output) == "" {
		return nil, fmt.Errorf("example input and output are required: %w", appErr.ErrInvalid)
	}
	h, err := s.handle(ctx, backend)
	if err != nil {
		return nil, err
	}
	ex := h.AddExample(input, output)
	return &ex, nil
}

// loaded returns the live handle when it serves backend, or any live handle
// for an empty backend. It never loads or switches backends.
func (s *ChatService) loaded(backend string) (*router.ModelHandle, error) {
	if s.router == nil {
		return nil, appErr.ErrBackendUnavailable
	}
	h := s.router.Current()
	if h == nil || (backend != "" && h.Backend() != backend) {
		return nil, nil
	}
	return h, nil
}

// ListExamples is empty when backend is not the loaded one.
func (s *ChatService) ListExamples(ctx context.Context, backend string) ([]router.Example, error) {
	h, err := s.loaded(backend)
	if err != nil || h == nil {
		return []router.Example{}, err
	}
	return h.ListExamples(), nil
}

func (s *ChatService) DeleteExample(ctx context.Context, backend, id string) error {
	h, err := s.loaded(backend)
	if err != nil || h == nil {
		return err
	}
	h.DeleteExample(id)
	return nil
}

func (s *ChatService) DeleteAllExamples(ctx context.Context, backend string) (int, error) {
	h, err := s.loaded(backend)
	if err != nil || h == nil {
		return 0, err
	}
	return h.DeleteAllExamples(), nil
}

func (s *ChatService) Tasks() []string {
	return s.prompts.Tasks()
}
