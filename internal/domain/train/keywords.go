package train

import (
	"regexp"
	"sort"
)

// keywordPattern matches candidate keywords in extracted (lowercased)
// Portuguese text: alphabetic runs of three or more characters, accents and
// hyphens included. Three matters: pix, ted and iof are telling terms.
var keywordPattern = regexp.MustCompile(`[a-zçãõáéíóúâêôà-]{3,}`)

// stopwords are Portuguese function words plus terms so common in financial
// statements that they carry no signal for telling layouts apart.
var stopwords = map[string]struct{}{}

func init() {
	for _, w := range []string{
		"de", "a", "o", "que", "e", "do", "da", "em", "um", "para", "é", "com", "não", "uma",
		"os", "no", "se", "na", "por", "mais", "as", "dos", "como", "mas", "foi", "ao", "ele",
		"das", "tem", "à", "seu", "sua", "ou", "ser", "quando", "muito", "há", "nos", "já",
		"está", "eu", "também", "só", "pelo", "pela", "até", "isso", "ela", "entre", "era",
		"depois", "sem", "mesmo", "aos", "ter", "seus", "quem", "nas", "me", "esse", "eles",
		"estão", "você", "tinha", "foram", "essa", "num", "nem", "suas", "meu", "às", "minha",
		"numa", "pelos", "elas", "havia", "seja", "qual", "será", "nós", "tenho", "lhe",
		"deles", "essas", "esses", "pelas", "este", "fosse", "dele", "tu", "te", "vocês",
		"vos", "lhes", "meus", "minhas", "teu", "tua", "teus", "tuas", "nosso", "nossa",
		"nossos", "nossas", "dela", "delas", "esta", "estes", "estas", "aquele", "aquela",
		"aqueles", "aquelas", "isto", "aquilo", "estou", "estamos", "estive",
		"esteve", "estivemos", "estiveram", "estava", "estávamos", "estavam", "estivera",
		"estivéramos", "esteja", "estejamos", "estejam", "estivesse", "estivéssemos",
		"estivessem", "estiver", "estivermos", "estiverem", "houve", "houveram", "houvera",
		"houvéramos", "haja", "hajamos", "hajam", "houvesse", "houvéssemos", "houvessem",
		"houver", "houvermos", "houverem", "houverei", "houverá", "houveremos", "houverão",
		"houveria", "houveríamos", "houveriam", "cpf", "cnpj", "cep", "data", "valor",
		"saldo", "total", "doc", "conta", "corrente", "extrato", "historico",
	} {
		stopwords[w] = struct{}{}
	}
}

// SuggestKeywords mines the n most frequent non-stopword terms from text.
// Ties break alphabetically so the result is deterministic.
func SuggestKeywords(text string, n int) []string {
	counts := map[string]int{}
	for _, w := range keywordPattern.FindAllString(text, -1) {
		if _, skip := stopwords[w]; skip {
			continue
		}
		counts[w]++
	}

	words := make([]string, 0, len(counts))
	for w := range counts {
		words = append(words, w)
	}
	sort.Slice(words, func(i, j int) bool {
		if counts[words[i]] != counts[words[j]] {
			return counts[words[i]] > counts[words[j]]
		}
		return words[i] < words[j]
	})

	if len(words) > n {
		words = words[:n]
	}
	return words
}
