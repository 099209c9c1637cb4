// Package conversation runs the asynchronous reply pipeline.
//
// After a user message is persisted, ProcessMessage loads the conversation
// and its recent history, hands them to the reply generator, and persists
// the generated text as an agent message. Failures inside the pipeline
// collapse to a fixed apology message rather than an error, so every user
// message gets an answer as long as the store can write.
package conversation
