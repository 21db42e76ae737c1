package render

// Profile is the fixed business identity printed on every invoice.
type Profile struct {
	NameEnglish     string
	NameArabic      string
	TaglineEnglish  string
	TaglineArabic   string
	LocationEnglish string
	LocationArabic  string
	Mobile          string
	MobileArabic    string
	AddressEnglish  string
	AddressArabic   string
	Email           string
	Currency        string
}

func DefaultProfile() Profile {
	return Profile{
		NameEnglish:     "SEHR AL WEQAIAH Est.",
		NameArabic:      "مؤسسة سحر الوقاية",
		TaglineEnglish:  "for Safety Tools and Materials",
		TaglineArabic:   "لأدوات ومواد السلامة",
		LocationEnglish: "Tabuk - Tima",
		LocationArabic:  "تبوك - تيماء",
		Mobile:          "0536070172",
		MobileArabic:    "جوال: ٠٥٣٦٠٢٠٢٢٢",
		AddressEnglish:  "Saudi Arabia - Tabuk - Taima - Khaled Bin Waleed St. - C.R. 3554001573",
		AddressArabic:   "٣٥٥٤٠٠١٢٢٢ المملكة العربية السعودية - تبوك- تيماء - الشارع خالد بن وليد - س. ت:",
		Email:           "bandarfalah@hotmail.com",
		Currency:        "SR",
	}
}

// Merge returns p with every non-empty field of override applied.
func (p Profile) Merge(override Profile) Profile {
	pick := func(base, o string) string {
		if o != "" {
			return o
		}
		return base
	}
	return Profile{
		NameEnglish:     pick(p.NameEnglish, override.NameEnglish),
		NameArabic:      pick(p.NameArabic, override.NameArabic),
		TaglineEnglish:  pick(p.TaglineEnglish, override.TaglineEnglish),
		TaglineArabic:   pick(p.TaglineArabic, override.TaglineArabic),
		LocationEnglish: pick(p.LocationEnglish, override.LocationEnglish),
		LocationArabic:  pick(p.LocationArabic, override.LocationArabic),
		Mobile:          pick(p.Mobile, override.Mobile),
		MobileArabic:    pick(p.MobileArabic, override.MobileArabic),
		AddressEnglish:  pick(p.AddressEnglish, override.AddressEnglish),
		AddressArabic:   pick(p.AddressArabic, override.AddressArabic),
		Email:           pick(p.Email, override.Email),
		Currency:        pick(p.Currency, override.Currency),
	}
}
