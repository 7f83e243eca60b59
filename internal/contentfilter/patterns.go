package contentfilter

// Patterns holds every heuristic table used by the filters. Each list is
// ordered data so it can be tuned from configuration without touching
// control flow; empty lists in an override fall back to the defaults.
type Patterns struct {
	// RemoveTags are element kinds dropped unconditionally.
	RemoveTags []string `yaml:"removeTags"`
	// MinimalRemoveTags are the only kinds dropped by the minimal reduction.
	MinimalRemoveTags []string `yaml:"minimalRemoveTags"`
	// PreservedTags are never classified as noise.
	PreservedTags []string `yaml:"preservedTags"`
	// KeepTags survive empty-element pruning even without text.
	KeepTags []string `yaml:"keepTags"`
	// Noise and Product are case-insensitive regular expressions matched
	// against class, id and data-* attribute values.
	Noise   []string `yaml:"noise"`
	Product []string `yaml:"product"`

	// BoilerplateLines are full-line expressions removed by DenoiseLines.
	BoilerplateLines []string `yaml:"boilerplateLines"`

	// NoiseSections open a skipped markdown section when a line matches.
	NoiseSections []string `yaml:"noiseSections"`
	// GoodSections are substrings that close a skipped section when they
	// appear in a heading.
	GoodSections []string `yaml:"goodSections"`
	// NoiseLines are single markdown lines dropped by FilterSections.
	NoiseLines []string `yaml:"noiseLines"`
}

// DefaultPatterns returns the built-in tables.
func DefaultPatterns() Patterns {
	return Patterns{
		RemoveTags: []string{
			"script", "style", "noscript", "iframe", "frame", "frameset", "object", "embed",
			"svg", "canvas",
			"header", "footer", "nav", "aside", "menu", "menuitem",
			"form", "input", "button", "select", "textarea",
		},
		MinimalRemoveTags: []string{"script", "style", "noscript", "iframe", "frame", "frameset"},
		PreservedTags:     []string{"h1", "h2", "h3", "main", "article"},
		KeepTags: []string{
			"html", "head", "body", "img", "picture", "source", "table", "thead", "tbody",
			"tr", "td", "th", "br", "hr",
		},
		Noise: []string{
			// headers and navigation
			`header`, `navbar`, `nav-`, `navigation`, `top-bar`, `topbar`,
			`menu`, `mega-menu`, `dropdown`, `hamburger`,
			// footers
			`footer`, `foot-`, `bottom-bar`, `bottombar`, `copyright`,
			// related and recommended products
			`related`, `recommend`, `similar`, `also-bought`, `also-viewed`,
			`you-may-like`, `customers-also`, `frequently-bought`,
			`carousel`, `slider`, `swiper`, `slick`,
			// reviews and comments
			`review`, `rating`, `comment`, `feedback`, `testimonial`,
			`star-rating`, `user-review`, `customer-review`,
			// social and share
			`social`, `share`, `facebook`, `twitter`, `instagram`, `pinterest`,
			`whatsapp`, `telegram`, `linkedin`,
			// ads, banners, popups
			`banner`, `promo`, `popup`, `modal`, `overlay`, `ad-`,
			`advertisement`, `sponsored`, `newsletter`, `subscribe`,
			// misc
			`breadcrumb`, `pagination`, `pager`, `sidebar`, `widget`,
			`cookie`, `gdpr`, `consent`, `chat`, `support-chat`,
			`recently-viewed`, `wishlist`, `compare`,
		},
		Product: []string{
			`product-title`, `product-name`, `product-info`,
			`product-description`, `product-detail`, `product-spec`,
			`specification`, `spec-table`, `tech-spec`, `features`,
			`description`, `overview`, `about-product`, `highlights`,
			`key-features`, `bullet`, `attribute`, `property`,
			`price`, `offer`, `discount`, `sku`, `model`,
			`dimensions`, `weight`, `capacity`, `warranty`,
			`pdp-`, `detail-page`, `main-content`, `product-content`,
			// marketplace layouts
			`title`, `titleblock`, `dp-`, `detail`, `feature`,
			`a-section`, `a-row`, `a-box`, `atc-`,
			`availability`, `buybox`, `cart`,
			// generic e-commerce
			`item-`, `sku-`, `prod-`, `specs`, `info`,
		},
		BoilerplateLines: []string{
			`^#{1,6}\s*(menu|navigation|footer|header|sign\s*in|log\s*in|cart|wishlist|account).*$`,
			`^\s*\|\s*\|\s*$`,
			`^[-=_]{10,}$`,
			`^\s*©.*$`,
			`^\s*all\s*rights\s*reserved.*$`,
			`^\s*privacy\s*policy.*$`,
			`^\s*terms\s*(of\s*service|&\s*conditions).*$`,
			`^\s*cookie\s*policy.*$`,
			`^\s*(subscribe|newsletter).*$`,
			`^\s*follow\s*us.*$`,
			`^\s*(facebook|twitter|instagram|youtube|linkedin|pinterest).*$`,
			`^\s*share\s*(this|on|via).*$`,
			`^skip\s*to\s*(main\s*)?content.*$`,
			`^\s*\*\s*$`,
			`^\s*loading\.{3,}$`,
			`^\s*please\s*wait.*$`,
		},
		NoiseSections: []string{
			`^#+\s*(related|recommended|you may|also like|customers also|similar)`,
			`^#+\s*(reviews?|ratings?|customer feedback|testimonials)`,
			`^#+\s*(footer|navigation|menu|links)`,
			`^#+\s*(share|social|follow us)`,
			`^#+\s*(newsletter|subscribe|sign up)`,
			`^#+\s*(recently viewed|browsing history)`,
			`^#+\s*(compare|wishlist)`,
		},
		GoodSections: []string{
			"description", "specification", "feature", "detail",
			"overview", "about", "highlight", "what's in",
			"technical", "dimension", "warranty",
		},
		NoiseLines: []string{
			`^\s*[\*\-]\s*\[.*?\]\(.*?\)\s*$`,
			`^\s*\|.*\|.*\|`,
		},
	}
}

// Merge returns p with every empty table replaced by the default one.
func (p Patterns) Merge() Patterns {
	d := DefaultPatterns()
	pick := func(v, def []string) []string {
		if len(v) == 0 {
			return def
		}
		return v
	}
	return Patterns{
		RemoveTags:        pick(p.RemoveTags, d.RemoveTags),
		MinimalRemoveTags: pick(p.MinimalRemoveTags, d.MinimalRemoveTags),
		PreservedTags:     pick(p.PreservedTags, d.PreservedTags),
		KeepTags:          pick(p.KeepTags, d.KeepTags),
		Noise:             pick(p.Noise, d.Noise),
		Product:           pick(p.Product, d.Product),
		BoilerplateLines:  pick(p.BoilerplateLines, d.BoilerplateLines),
		NoiseSections:     pick(p.NoiseSections, d.NoiseSections),
		GoodSections:      pick(p.GoodSections, d.GoodSections),
		NoiseLines:        pick(p.NoiseLines, d.NoiseLines),
	}
}
