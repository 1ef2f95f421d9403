package parser

import (
	"testing"
)

const sampleSearchPage = `
<html><body>
<ul class="bigimg">
  <li>
    <a dd_name="单品标题" title="Go程序设计语言" href="/product/1"></a>
    <p class="price"><span class="search_now_price">¥45.60</span></p>
    <img data-original="//img.example.com/covers/go.jpg" src="/static/blank.gif"/>
  </li>
  <li>
    <a class="pic" title="深入理解计算机系统" href="/product/2"></a>
    <span class="price_n">￥99.00</span>
    <img src="http://img.example.com/covers/csapp.jpg"/>
  </li>
  <li>
    <a name="itemlist-title" href="/product/3">算法导论</a>
    <p class="price"><span class="search_now_price">面议</span></p>
  </li>
  <li>
    <div class="ad-banner">sponsored</div>
  </li>
</ul>
</body></html>`

func TestParseSearch(t *testing.T) {
	listings := ParseSearch(sampleSearchPage)

	if len(listings) != 3 {
		t.Fatalf("parsed %d listings, want 3", len(listings))
	}

	first := listings[0]
	if first.Title != "Go程序设计语言" {
		t.Errorf("first title = %q", first.Title)
	}
	if first.Price != 45.60 {
		t.Errorf("first price = %v, want 45.60", first.Price)
	}
	if first.ImageURL != "http://img.example.com/covers/go.jpg" {
		t.Errorf("first image url = %q, want protocol-normalized data-original", first.ImageURL)
	}

	second := listings[1]
	if second.Title != "深入理解计算机系统" {
		t.Errorf("second title = %q", second.Title)
	}
	if second.Price != 99.00 {
		t.Errorf("second price = %v, want 99.00", second.Price)
	}
	if second.ImageURL != "http://img.example.com/covers/csapp.jpg" {
		t.Errorf("second image url = %q", second.ImageURL)
	}

	third := listings[2]
	if third.Title != "算法导论" {
		t.Errorf("third title = %q", third.Title)
	}
	if third.Price != 0 {
		t.Errorf("unparsable price should resolve to 0, got %v", third.Price)
	}
	if third.ImageURL != "" {
		t.Errorf("third image url = %q, want empty", third.ImageURL)
	}
}

func TestParseSearchEmptyDocument(t *testing.T) {
	if listings := ParseSearch(""); len(listings) != 0 {
		t.Fatalf("empty document should yield no listings, got %d", len(listings))
	}
	if listings := ParseSearch("<html><body><p>no results</p></body></html>"); len(listings) != 0 {
		t.Fatalf("page without listing nodes should yield no listings, got %d", len(listings))
	}
}

func TestParseSearchSkipsMalformedElements(t *testing.T) {
	page := `
<ul class="smallimg">
  <li><span class="price_n">¥10.00</span></li>
  <li><a class="pic" title="正常条目"></a><span class="price_n">¥12.50</span></li>
</ul>`

	listings := ParseSearch(page)
	if len(listings) != 1 {
		t.Fatalf("parsed %d listings, want 1 (titleless element skipped)", len(listings))
	}
	if listings[0].Title != "正常条目" || listings[0].Price != 12.50 {
		t.Fatalf("unexpected listing %+v", listings[0])
	}
}

func TestNormalizePrice(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "fullwidth yen",
			input:    "￥45.60",
			expected: "45.60",
		},
		{
			name:     "halfwidth yen with whitespace",
			input:    "  ¥12.00  ",
			expected: "12.00",
		},
		{
			name:     "already clean",
			input:    "25.99",
			expected: "25.99",
		},
		{
			name:     "empty string",
			input:    "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizePrice(tt.input); got != tt.expected {
				t.Errorf("NormalizePrice(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestParsePrice(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected float64
	}{
		{
			name:     "plain",
			input:    "45.60",
			expected: 45.60,
		},
		{
			name:     "currency symbol",
			input:    "¥128.00",
			expected: 128,
		},
		{
			name:     "non numeric",
			input:    "面议",
			expected: 0,
		},
		{
			name:     "negative",
			input:    "-5",
			expected: 0,
		},
		{
			name:     "empty",
			input:    "",
			expected: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParsePrice(tt.input); got != tt.expected {
				t.Errorf("ParsePrice(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestNormalizeImageURL(t *testing.T) {
	if got := NormalizeImageURL("//img.example.com/a.jpg"); got != "http://img.example.com/a.jpg" {
		t.Errorf("protocol-relative url = %q", got)
	}
	if got := NormalizeImageURL("https://img.example.com/a.jpg"); got != "https://img.example.com/a.jpg" {
		t.Errorf("absolute url should pass through, got %q", got)
	}
	if got := NormalizeImageURL(""); got != "" {
		t.Errorf("empty url should stay empty, got %q", got)
	}
}
