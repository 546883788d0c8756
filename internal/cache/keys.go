package cache

import (
	"fmt"
	"strings"
	"time"
)

const (
	UserKeyPrefix       = "user:%d"
	PublicPageKeyPrefix = "public:page:%s:%s"
)

const (
	UserTTL       = 5 * time.Minute
	PublicPageTTL = 2 * time.Minute
)

func UserKey(userID uint) string {
	return fmt.Sprintf(UserKeyPrefix, userID)
}

// PublicPageKey keys the rendered public view of a page. An empty slug keys
// the owner's default page.
func PublicPageKey(username, slug string) string {
	return fmt.Sprintf(PublicPageKeyPrefix, strings.ToLower(username), strings.ToLower(slug))
}
