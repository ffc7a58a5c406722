// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Common attribute keys for consistent tracing across the application.
const (
	// HTTP attributes
	HTTPMethodKey     = "http.method"
	HTTPStatusCodeKey = "http.status_code"
	HTTPRouteKey      = "http.route"
	HTTPURLKey        = "http.url"

	// Session attributes
	SessionAuthModeKey  = "session.auth_mode"
	SessionResultKey    = "session.result"
	SessionAttemptIDKey = "session.attempt_id"

	// Search attributes
	SearchFlavorKey   = "search.flavor"
	SearchKeywordKey  = "search.keyword"
	SearchSourcesKey  = "search.sources"
	SearchResultsKey  = "search.results"
	SearchSalvagedKey = "search.salvaged"
	SearchTimedOutKey = "search.timed_out"
	SearchProviderKey = "search.provider"
	SearchSourceKey   = "search.source"
	SearchOutcomeKey  = "search.outcome"
	SearchCacheHitKey = "search.cache_hit"

	// Error attributes
	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// HTTPAttributes creates common HTTP span attributes.
func HTTPAttributes(method, route, url string, statusCode int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(HTTPMethodKey, method),
		attribute.String(HTTPRouteKey, route),
		attribute.String(HTTPURLKey, url),
		attribute.Int(HTTPStatusCodeKey, statusCode),
	}
}

// SearchAttributes describes one fan-out request.
func SearchAttributes(flavor, keyword string, sources int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(SearchFlavorKey, flavor),
		attribute.String(SearchKeywordKey, keyword),
		attribute.Int(SearchSourcesKey, sources),
	}
}

// DispatchAttributes summarizes how a fan-out ended.
func DispatchAttributes(results, salvaged, timedOut int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(SearchResultsKey, results),
		attribute.Int(SearchSalvagedKey, salvaged),
		attribute.Int(SearchTimedOutKey, timedOut),
	}
}

// SourceAttributes describes one per-source task. Empty values are omitted.
func SourceAttributes(provider, source, outcome string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 3)
	if provider != "" {
		attrs = append(attrs, attribute.String(SearchProviderKey, provider))
	}
	if source != "" {
		attrs = append(attrs, attribute.String(SearchSourceKey, source))
	}
	if outcome != "" {
		attrs = append(attrs, attribute.String(SearchOutcomeKey, outcome))
	}
	return attrs
}

// ErrorAttributes creates error-related span attributes.
func ErrorAttributes(_ error, errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}
