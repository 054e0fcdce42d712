// Package potatohead is a multi-agent workflow engine that orchestrates
// dependent generation tasks across heterogeneous language-model providers
// (OpenAI Chat, Anthropic Messages, Google Gemini and Vertex).
//
// Callers describe a directed acyclic graph of tasks, each bound to an agent
// configured for a single provider. The engine resolves dependencies,
// executes independent tasks concurrently, threads upstream responses into
// downstream prompts (converting message formats across vendors when
// needed), binds ${name} template parameters harvested from structured
// outputs, and records a chronological event log.
//
// Typical usage:
//  1. Build provider clients (provider.New) and agents (agent.New)
//  2. Register agents and tasks on a workflow (workflow.New, AddTask)
//  3. Call Run; inspect the returned executed clone and its event tracker
//
// The packages compose bottom-up: wire/* hold the vendor wire models,
// prompt holds the provider-agnostic message and request surface, provider
// holds the HTTP clients, agent binds a client to task execution and
// workflow drives the run loop.
package potatohead

// Version is the library version persisted into serialized prompts so that
// stored workflows carry their origin.
const Version = "0.1.0"
