package auth

import (
	"fmt"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

// AddNotice は次に表示されるページで一度だけ出すお知らせを保存します。
func AddNotice(c *gin.Context, notice string) error {
	session := sessions.Default(c)
	session.AddFlash(notice)
	return session.Save()
}

// Notices は保留中のお知らせを取り出します。取り出したお知らせは消えます。
func Notices(c *gin.Context) []string {
	session := sessions.Default(c)
	flashes := session.Flashes()
	if len(flashes) == 0 {
		return nil
	}
	_ = session.Save()

	notices := make([]string, 0, len(flashes))
	for _, f := range flashes {
		if s, ok := f.(string); ok {
			notices = append(notices, s)
		} else {
			notices = append(notices, fmt.Sprint(f))
		}
	}
	return notices
}
