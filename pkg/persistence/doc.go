// Package persistence keeps agent state that must survive restarts.
//
// The only state today is the agent identity: the UUID is generated on first
// run and reused afterwards so peers see the same agent_id across restarts.
// Certificate material is stored separately by the cert package.
package persistence
