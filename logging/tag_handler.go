package logging

import (
	"context"
	"errors"
	"log/slog"
)

const (
	// TagKey 日志标签属性名。
	TagKey = "tag"
	// AllTags 允许全部标签。
	AllTags = "*"
)

// sink 一个输出目标及其标签允许列表.
type sink struct {
	handler slog.Handler
	allow   map[string]struct{}
}

func newSink(h slog.Handler, tags []string) sink {
	allow := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		allow[t] = struct{}{}
	}
	return sink{handler: h, allow: allow}
}

func (s sink) allowed(tag string, lvl slog.Level) bool {
	if tag == "" || lvl >= slog.LevelWarn {
		return true
	}
	if _, ok := s.allow[AllTags]; ok {
		return true
	}
	_, ok := s.allow[tag]
	return ok
}

// tagHandler 按标签把记录分发到各输出目标：带标签且标签不在该目标允许列表中的记录对该目标丢弃。
// 无标签记录与 Warn 及以上级别的记录总是输出。记录自身的 tag 属性优先于 Logger 上的标签。
type tagHandler struct {
	sinks []sink
	tag   string
}

func newTagHandler(sinks ...sink) slog.Handler {
	return &tagHandler{sinks: sinks}
}

func (h *tagHandler) Enabled(ctx context.Context, lvl slog.Level) bool {
	for _, s := range h.sinks {
		if s.allowed(h.tag, lvl) && s.handler.Enabled(ctx, lvl) {
			return true
		}
	}
	return false
}

func (h *tagHandler) Handle(ctx context.Context, r slog.Record) error {
	tag := h.tag
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == TagKey {
			tag = a.Value.String()
			return false
		}
		return true
	})

	var errs []error
	for _, s := range h.sinks {
		if !s.allowed(tag, r.Level) || !s.handler.Enabled(ctx, r.Level) {
			continue
		}
		if err := s.handler.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (h *tagHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	tag := h.tag
	for _, a := range attrs {
		if a.Key == TagKey {
			tag = a.Value.String()
		}
	}
	sinks := make([]sink, len(h.sinks))
	for i, s := range h.sinks {
		sinks[i] = sink{handler: s.handler.WithAttrs(attrs), allow: s.allow}
	}
	return &tagHandler{sinks: sinks, tag: tag}
}

func (h *tagHandler) WithGroup(name string) slog.Handler {
	sinks := make([]sink, len(h.sinks))
	for i, s := range h.sinks {
		sinks[i] = sink{handler: s.handler.WithGroup(name), allow: s.allow}
	}
	return &tagHandler{sinks: sinks, tag: h.tag}
}
