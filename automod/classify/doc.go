// Content classifiers for the moderation engine: language identification of message text, and a scam/fraud
// risk score for text and an optional image.
//
// Classifiers here talk to their backends directly and return plain errors. The engine decides how failures
// degrade (a failed classification never causes enforcement).
package classify
