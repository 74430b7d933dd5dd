package cache

import (
	"fmt"
	"time"
)

const (
	ProtocolKeyPrefix     = "content:protocol:%s"
	ResourceKeyPrefix     = "content:resource:%s"
	WSTicketKeyPrefix     = "ws_ticket:%s"
	RevokedTokenKeyPrefix = "jwt:revoked:%s"
	OnlineUsersKey        = "ws:online_counts"
)

const (
	ContentTTL  = 10 * time.Minute
	WSTicketTTL = 30 * time.Second
)

func ProtocolKey(slug string) string {
	return fmt.Sprintf(ProtocolKeyPrefix, slug)
}

func ResourceKey(slug string) string {
	return fmt.Sprintf(ResourceKeyPrefix, slug)
}

func WSTicketKey(ticket string) string {
	return fmt.Sprintf(WSTicketKeyPrefix, ticket)
}

func RevokedTokenKey(jti string) string {
	return fmt.Sprintf(RevokedTokenKeyPrefix, jti)
}
