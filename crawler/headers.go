package crawler

import (
	"math/rand"

	browser "github.com/EDDYCJY/fake-useragent"
)

// The exact values are boilerplate; what matters is that the set varies
// between attempts so consecutive requests do not share a fingerprint.
var (
	referers = []string{
		"http://www.dangdang.com/",
		"http://book.dangdang.com/",
		"http://search.dangdang.com/",
	}

	acceptLanguages = []string{
		"zh-CN,zh;q=0.9",
		"zh-CN,zh;q=0.9,en;q=0.8",
		"zh-CN,zh;q=0.8,en-US;q=0.6,en;q=0.4",
	}
)

func randomHeaders() map[string]string {
	return map[string]string{
		"User-Agent":      browser.Random(),
		"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
		"Accept-Language": acceptLanguages[rand.Intn(len(acceptLanguages))],
		"Referer":         referers[rand.Intn(len(referers))],
		"DNT":             "1",
		"Connection":      "keep-alive",
	}
}
