// Package runtime wires storage, config and the realtime components into a
// single Pulse process. It owns their lifecycle: Open builds everything once
// (choosing the broker backend for the life of the process) and Close tears it
// down in reverse order.
//
// Example:
//
//	cfg := config.Default()
//	rt, _ := runtime.Open(ctx, runtime.Options{DataDir: "./data", Config: cfg, Logger: logger})
//	defer rt.Close()
//	_ = rt.CheckHealth(ctx)
//	rt.Publisher().InvalidateAndPublish(ctx, invalidation.Params{Topic: realtime.TopicProjects, OrganizationID: "org_1"})
package runtime
