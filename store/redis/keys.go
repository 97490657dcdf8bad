package redis

// Redis key naming conventions for durable data.
// All keys are prefixed with "durable:" to avoid collisions.

const keyPrefix = "durable:"

// runKey returns the key for a run entity: durable:run:{id}
func runKey(id string) string { return keyPrefix + "run:" + id }

// runIDsKey is the Set tracking all run IDs for enumeration.
const runIDsKey = keyPrefix + "run_ids"

// historyKey returns the List key holding a run's entries in append
// order: durable:history:{runID}
func historyKey(runID string) string { return keyPrefix + "history:" + runID }

// timerKey returns the key for a timer: durable:timer:{runID}:{positionKey}
func timerKey(runID, key string) string {
	return keyPrefix + "timer:" + runID + ":" + key
}
