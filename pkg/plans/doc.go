// Package plans implements the billing plan registry.
//
// # Overview
//
// A plan is a billing template: payment asset, price, billing interval and a
// subscriber capacity. Plan identity is immutable after creation; operators can
// only pause/resume a plan. Plan ids are assigned sequentially and never reused.
//
// Capacity is managed through AcquireSlot/ReleaseSlot so the subscription
// registry never observes a plan above its capacity, even under concurrent
// subscription attempts.
//
// # Usage Example
//
//	svc := plans.NewMemoryService(nil)
//	plan, err := svc.CreatePlan(ctx, &plans.CreatePlanRequest{
//		Name:           "pro-monthly",
//		Asset:          "usdc",
//		Price:          10_000_000, // 10 USDC
//		Interval:       30 * 24 * time.Hour,
//		MaxSubscribers: 500,
//	})
//
// # Related Packages
//
//   - pkg/subscriptions: acquires/releases capacity slots
package plans
