package kernel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mathics/gomathics/internal/eval"
	"github.com/mathics/gomathics/internal/events"
	"github.com/mathics/gomathics/internal/expr"
	"github.com/mathics/gomathics/internal/history"
	"github.com/mathics/gomathics/internal/parser"
	"github.com/mathics/gomathics/internal/protocol"
	"github.com/mathics/gomathics/internal/session"
	"github.com/mathics/gomathics/internal/state"
	"github.com/mathics/gomathics/internal/telemetry"
	"github.com/mathics/gomathics/internal/telemetry/invariants"
)

func (k *Kernel) kernelInfo() protocol.KernelInfoReplyContent {
	return protocol.KernelInfoReplyContent{
		ProtocolVersion:       append([]int(nil), ProtocolVersion...),
		LanguageVersion:       append([]int(nil), LanguageVersion...),
		Language:              Language,
		Implementation:        Implementation,
		ImplementationVersion: k.version,
	}
}

func (k *Kernel) handleKernelInfo(ctx context.Context, req protocol.Message) (string, error) {
	return protocol.StatusOK, k.reply(ctx, req, protocol.KernelInfoReply, k.kernelInfo())
}

// handleExecute evaluates the request's code. Messages become pyerr, non-Null
// values become pyout tagged with their own line and Print output becomes
// stream, all published before the reply.
func (k *Kernel) handleExecute(ctx context.Context, req protocol.Message) (string, error) {
	var content protocol.ExecuteRequestContent
	if err := req.DecodeContent(&content); err != nil {
		reply := protocol.NewExecuteReply(protocol.StatusError, k.session.ExecutionCount())
		reply.Ename = "MalformedRequest"
		reply.Evalue = err.Error()
		return protocol.StatusError, k.reply(ctx, req, protocol.ExecuteReply, reply)
	}

	if !content.Silent {
		pyin := protocol.PyinContent{Code: content.Code, ExecutionCount: k.session.Line()}
		if err := k.publish(ctx, &req, protocol.Pyin, pyin); err != nil {
			return "", err
		}
	}

	evalCtx, cancel := context.WithCancel(ctx)
	k.setInFlight(cancel)
	defer func() {
		k.setInFlight(nil)
		cancel()
	}()

	var streamErr error
	sink := eval.SinkFunc(func(text string) {
		err := k.publish(ctx, &req, protocol.Stream, protocol.StreamContent{Name: "stdout", Data: text + "\n"})
		if err != nil && streamErr == nil {
			streamErr = err
		}
	})

	before := k.session.ExecutionCount()
	started := time.Now()
	results, err := k.session.Evaluate(evalCtx, content.Code, sink)

	status := protocol.StatusOK
	var first *eval.Message
	var syntaxErr *parser.SyntaxError
	switch {
	case errors.As(err, &syntaxErr):
		msg := session.SyntaxMessage(syntaxErr)
		first = &msg
		status = protocol.StatusError
		if err := k.publishMessage(ctx, &req, msg); err != nil {
			return status, err
		}
	case err != nil:
		return protocol.StatusError, fmt.Errorf("evaluate: %w", err)
	}
	if streamErr != nil {
		k.logger.Warn("publish printed output", "msg_id", req.Header.MsgID, "error", streamErr)
	}

	for _, result := range results {
		for i := range result.Messages {
			msg := result.Messages[i]
			if first == nil {
				first = &msg
			}
			status = protocol.StatusError
			if err := k.publishMessage(ctx, &req, msg); err != nil {
				return status, err
			}
		}
		if result.Aborted() {
			status = protocol.StatusError
		}
		if expr.IsNull(result.Value) {
			continue
		}
		pyout := protocol.PyoutContent{
			ExecutionCount: result.Line,
			Data:           map[string]string{"text/plain": result.Text},
			Metadata:       map[string]any{},
		}
		if err := k.publish(ctx, &req, protocol.Pyout, pyout); err != nil {
			return status, err
		}
	}

	count := k.session.ExecutionCount()
	invariants.CheckExecutionCountMonotonic(ctx, "kernel.handleExecute", before, count)

	k.bus.Publish(events.Event{
		Type:       events.EventTypeEvaluation,
		Timestamp:  time.Now().UTC(),
		EntityType: string(state.EntityRequest),
		EntityID:   req.Header.MsgID,
		Payload: map[string]any{
			"inputs":          len(results),
			"execution_count": count,
			"elapsed_ms":      time.Since(started).Milliseconds(),
		},
		Severity: events.SeverityInfo,
	})

	reply := protocol.NewExecuteReply(status, count)
	if first != nil {
		reply.Ename = first.Symbol + "::" + first.Tag
		reply.Evalue = first.Text
		reply.Traceback = []string{first.String()}
	}
	return status, k.reply(ctx, req, protocol.ExecuteReply, reply)
}

func (k *Kernel) publishMessage(ctx context.Context, parent *protocol.Message, msg eval.Message) error {
	name := msg.Symbol + "::" + msg.Tag
	telemetry.RequestFromContext(ctx).RecordMessage(name, msg.Text)
	return k.publish(ctx, parent, protocol.Pyerr, protocol.PyerrContent{
		Ename:     name,
		Evalue:    msg.Text,
		Traceback: []string{msg.String()},
	})
}

// handleHistory answers with the most recent recorded inputs as
// [session, line, input] or [session, line, [input, output]] entries.
func (k *Kernel) handleHistory(ctx context.Context, req protocol.Message) (string, error) {
	var content protocol.HistoryRequestContent
	if err := req.DecodeContent(&content); err != nil {
		k.logger.Warn("decode history request", "error", err)
	}

	items := [][]any{}
	status := protocol.StatusOK
	if k.history != nil {
		n := content.N
		if n <= 0 {
			n = history.DefaultTail
		}
		entries, err := k.history.Tail(ctx, n)
		if err != nil {
			k.logger.Warn("read history", "error", err)
			status = protocol.StatusError
		}
		for _, entry := range entries {
			var item any = entry.Input
			if content.Output {
				item = []any{entry.Input, entry.Output}
			}
			items = append(items, []any{entry.Session, entry.Line, item})
		}
	}
	return status, k.reply(ctx, req, protocol.HistoryReply, protocol.HistoryReplyContent{History: items})
}
