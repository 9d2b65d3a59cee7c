// Package language resolves language names and ISO 639-1 codes to the
// FLORES-200 codes that name the benchmark's source and reference files.
package language

import (
	"maps"
	"slices"
	"strings"
)

// floresByName maps English language names used in experiment configs.
var floresByName = map[string]string{
	"english":          "eng_Latn",
	"hindi":            "hin_Deva",
	"russian":          "rus_Cyrl",
	"arabic":           "arb_Arab",
	"spanish":          "spa_Latn",
	"japanese":         "jpn_Jpan",
	"german":           "deu_Latn",
	"mandarin chinese": "cmn_Hans",
	"chinese":          "cmn_Hans",
	"french":           "fra_Latn",
	"korean":           "kor_Hang",
	"italian":          "ita_Latn",
	"bengali":          "ben_Beng",
	"urdu":             "urd_Arab",
	"greek":            "ell_Grek",
	"portuguese":       "por_Latn",
	"tamil":            "tam_Taml",
	"vietnamese":       "vie_Latn",
	"romanian":         "ron_Latn",
	"turkish":          "tur_Latn",
	"marathi":          "mar_Deva",
	"telugu":           "tel_Telu",
	"tagalog":          "fil_Latn",
	"filipino":         "fil_Latn",
	"croatian":         "hrv_Latn",
	"sinhala":          "sin_Sinh",
	"ukrainian":        "ukr_Cyrl",
	"polish":           "pol_Latn",
	"dutch":            "nld_Latn",
	"swedish":          "swe_Latn",
	"czech":            "ces_Latn",
	"hungarian":        "hun_Latn",
	"hebrew":           "heb_Hebr",
	"indonesian":       "ind_Latn",
	"persian":          "pes_Arab",
	"thai":             "tha_Thai",
	"swahili":          "swh_Latn",
}

// floresByCode maps ISO 639-1 codes (and a few longer tags) to FLORES codes.
var floresByCode = map[string]string{
	"zh-hans": "cmn_Hans", "zh-cn": "cmn_Hans", "zh-tw": "cmn_Hant", "zh": "cmn_Hans",
	"en": "eng_Latn", "af": "afr_Latn", "sq": "als_Latn", "am": "amh_Ethi",
	"ar": "arb_Arab", "hy": "hye_Armn", "as": "asm_Beng", "ay": "ayr_Latn",
	"az": "azj_Latn", "bm": "bam_Latn", "eu": "eus_Latn", "be": "bel_Cyrl",
	"bn": "ben_Beng", "bho": "bho_Deva", "bs": "bos_Latn", "bg": "bul_Cyrl",
	"ca": "cat_Latn", "ceb": "ceb_Latn", "hr": "hrv_Latn", "cs": "ces_Latn",
	"da": "dan_Latn", "nl": "nld_Latn", "eo": "epo_Latn", "et": "ekk_Latn",
	"ee": "ewe_Latn", "fil": "fil_Latn", "fi": "fin_Latn", "fr": "fra_Latn",
	"gl": "glg_Latn", "ka": "kat_Geor", "de": "deu_Latn", "el": "ell_Grek",
	"gn": "gug_Latn", "gu": "guj_Gujr", "ht": "hat_Latn", "ha": "hau_Latn",
	"he": "heb_Hebr", "hi": "hin_Deva", "hu": "hun_Latn", "is": "isl_Latn",
	"ig": "ibo_Latn", "ilo": "ilo_Latn", "id": "ind_Latn", "ga": "gle_Latn",
	"it": "ita_Latn", "ja": "jpn_Jpan", "jv": "jav_Latn", "kn": "kan_Knda",
	"kk": "kaz_Cyrl", "km": "khm_Khmr", "rw": "kin_Latn", "gom": "gom_Deva",
	"ko": "kor_Hang", "ku": "kmr_Latn", "ckb": "ckb_Arab", "ky": "kir_Cyrl",
	"lo": "lao_Laoo", "lv": "lvs_Latn", "ln": "lin_Latn", "lt": "lit_Latn",
	"lg": "lug_Latn", "lb": "ltz_Latn", "mk": "mkd_Cyrl", "mai": "mai_Deva",
	"mg": "plt_Latn", "ms": "zsm_Latn", "ml": "mal_Mlym", "mt": "mlt_Latn",
	"mi": "mri_Latn", "mr": "mar_Deva", "mni-mtei": "mni_Mtei", "lus": "lus_Latn",
	"mn": "khk_Cyrl", "my": "mya_Mymr", "ne": "npi_Deva", "no": "nob_Latn",
	"ny": "nya_Latn", "or": "ory_Orya", "om": "gaz_Latn", "ps": "pbt_Arab",
	"fa": "pes_Arab", "pl": "pol_Latn", "pt": "por_Latn", "pa": "pan_Guru",
	"qu": "quy_Latn", "ro": "ron_Latn", "ru": "rus_Cyrl", "sm": "smo_Latn",
	"sa": "san_Deva", "gd": "gla_Latn", "nso": "nso_Latn", "sr": "srp_Cyrl",
	"st": "sot_Latn", "sn": "sna_Latn", "sd": "snd_Arab", "si": "sin_Sinh",
	"sk": "slk_Latn", "sl": "slv_Latn", "so": "som_Latn", "es": "spa_Latn",
	"su": "sun_Latn", "sw": "swh_Latn", "sv": "swe_Latn", "tl": "fil_Latn",
	"tg": "tgk_Cyrl", "ta": "tam_Taml", "tt": "tat_Cyrl", "te": "tel_Telu",
	"th": "tha_Thai", "ti": "tir_Ethi", "ts": "tso_Latn", "tr": "tur_Latn",
	"tk": "tuk_Latn", "ak": "twi_Latn", "uk": "ukr_Cyrl", "ur": "urd_Arab",
	"ug": "uig_Arab", "uz": "uzn_Latn", "vi": "vie_Latn", "cy": "cym_Latn",
	"xh": "xho_Latn", "yi": "ydd_Hebr", "yo": "yor_Latn", "zu": "zul_Latn",
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Flores returns the FLORES-200 code for a language name or ISO code.
// overrides (the config's language_codes) win over the built-in table and
// are matched case-insensitively.
func Flores(name string, overrides map[string]string) (string, bool) {
	key := normalize(name)
	if key == "" {
		return "", false
	}
	for k, v := range overrides {
		if normalize(k) == key && v != "" {
			return v, true
		}
	}
	if code, ok := floresByName[key]; ok {
		return code, true
	}
	if code, ok := floresByCode[key]; ok {
		return code, true
	}
	return "", false
}

// KnownNames lists the language names of the built-in table, sorted.
func KnownNames() []string {
	return slices.Sorted(maps.Keys(floresByName))
}
