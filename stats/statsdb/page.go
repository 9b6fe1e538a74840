package statsdb

import (
	"embed"
	"fmt"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/template/html/v2"
	"github.com/olebeck/stress/stats"
	"github.com/valyala/bytebufferpool"
	"golang.org/x/text/message"
)

//go:embed statspage.html
var pages embed.FS

// StatsPage serves the live snapshot and, when statsDB is not nil, the stored
// runs under group.
func StatsPage(group fiber.Router, statsDB *Store, info stats.Info, live func() stats.Snapshot) error {
	views := html.NewFileSystem(http.FS(pages), ".html")
	views.AddFunc("time", func(t time.Time) string {
		return t.Format(time.RFC822)
	})
	printer := message.NewPrinter(message.MatchLanguage("en"))
	views.AddFunc("num", func(num int64) string {
		return printer.Sprintf("%d", num)
	})
	views.AddFunc("pct", func(pct float64) string {
		return fmt.Sprintf("%.1f%%", pct)
	})
	if err := views.Load(); err != nil {
		return fmt.Errorf("load views: %w", err)
	}

	sessions := func(c *fiber.Ctx) ([]*stats.Session, error) {
		if statsDB == nil {
			return nil, nil
		}
		duration, err := time.ParseDuration(c.Query("duration", "12h"))
		if err != nil {
			return nil, fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		return statsDB.GetStats(duration, time.Now())
	}

	api := group.Group("/api")
	api.Get("/stats", func(c *fiber.Ctx) error {
		return c.JSON(live())
	})

	api.Get("/sessions", func(c *fiber.Ctx) error {
		if statsDB == nil {
			return fiber.NewError(fiber.StatusNotFound, "no stats db configured")
		}
		sessions, err := sessions(c)
		if err != nil {
			return err
		}
		return c.JSON(sessions)
	})

	group.Get("/", func(c *fiber.Ctx) error {
		sessions, err := sessions(c)
		if err != nil {
			return err
		}

		var sessionCount int
		if statsDB != nil {
			sessionCount, err = statsDB.SessionCount()
			if err != nil {
				return err
			}
		}

		buf := bytebufferpool.Get()
		defer bytebufferpool.Put(buf)
		err = views.Render(buf, "statspage", fiber.Map{
			"Info":         info,
			"Live":         live(),
			"SessionCount": sessionCount,
			"Sessions":     sessions,
			"Total":        stats.Total(sessions),
		})
		if err != nil {
			return err
		}
		c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
		return c.Send(buf.Bytes())
	})

	return nil
}
