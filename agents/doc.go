// Package agents contains the concrete clinic content agents.
//
// Every agent is a Config plus a Behavior run by agent.Agent. Behaviors
// extract their mandatory inputs, render a prompt, call the LLM through the
// agent.Env and merge the parsed answer into a copy of their input, so each
// one works standalone or as a pipeline step.
//
// Gatekeeper-capable agents implement agent.Decider:
//
//	legal_agent       legal_approved == false rejects
//	quality_agent     decision != publish rejects
//	editorial_agent   editorial_decision != approve rejects
//	publishing_agent  publish_approved == false rejects
package agents
