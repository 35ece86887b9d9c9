// Short-lived cache of string values with a fixed TTL, namespaced by name.
//
// Used by the moderation engine for chat administrator lookups and classifier verdicts, so repeated events do
// not hit the messaging platform or the classifier backend every time. Values are usually JSON or single
// tokens like "1".
//
// Includes an interface and implementations using redis and in-process memory.
package cachestore
