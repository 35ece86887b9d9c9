// Auto-moderation engine for Telegram group chats.
//
// This package (`github.com/groupguard/groupguard/automod`) contains a small moderation engine which watches messages in group chats and removes spam, scams, and messages in unwanted languages. Each chat member is tracked as "new" (untrusted) or "trusted": members who joined recently, and have not yet posted a couple of clean messages, get their messages classified. A content risk classifier scores messages for scams, and high-risk messages get the author banned regardless of trust. Messages in a flagged language from new members are deleted with a warning.
//
// The engine itself lives in the `engine` sub-package, with pluggable storage in `truststore`, `countstore`, `flagstore`, `cachestore`, and `setstore`. Classifier implementations are in `classify`, and the Telegram platform adapter is in `telegram`. See `cmd/groupguard` for a daemon built on this package.
package automod
