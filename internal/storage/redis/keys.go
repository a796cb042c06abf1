package redis

import (
	"fmt"

	"github.com/mcoot/skirmish/internal/model"
)

// Key prefix for all server data
const keyPrefix = "skirmish"

// accountKey returns the Redis key for an Account blob
func accountKey(id model.AccountID) string {
	return fmt.Sprintf("%s:account:%d", keyPrefix, id)
}

// accountIDCounterKey returns the Redis key of the INCR counter for new account ids
func accountIDCounterKey() string {
	return fmt.Sprintf("%s:seq:account_id", keyPrefix)
}

// trophiesIndexKey returns the Redis key for the ZSET of account id -> trophies
func trophiesIndexKey() string {
	return fmt.Sprintf("%s:idx:trophies", keyPrefix)
}
