package storage

// Package storage persists the automation core's durable state.
//
// It holds two independent collections as full snapshots:
//   - automation rules
//   - scheduled events
//
// Every mutating call in the engine/scheduler saves the whole collection;
// construction loads it. Records keep trigger/condition/action configuration
// as raw maps so unknown kinds survive a round trip untouched.
