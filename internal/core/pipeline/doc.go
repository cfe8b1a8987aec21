// Package pipeline provides pure functions for planning container pipelines.
//
// A pipeline is an ordered list of Step records. Each step is plain data
// naming a kind of work and the container and blueprint it applies to; the
// imperative shell (internal/shell/orchestrator) looks up a handler for the
// kind and executes it.
//
// # Functions
//
//   - Resumption: map a blueprint state to the undeploy steps it still needs (ResumeIndex)
//   - Building: compute the full step list for a container (Build)
//
// # Usage
//
//	steps, err := pipeline.Build(pipeline.Request{
//	    Container:   *container,
//	    Active:      active,
//	    RegisterApp: true,
//	})
package pipeline
