package scoring

import "github.com/socialforge/outreach/internal/domain"

// DefaultRubric is the built-in ICP rubric used when a tenant has none
// configured. It targets the platform's launch market (Brazilian SMB
// decision makers) with bilingual keyword lists.
func DefaultRubric() *domain.ICPRubric {
	return &domain.ICPRubric{
		DecisorKeywords: []string{
			"ceo", "fundador", "founder", "dono", "proprietário", "diretor",
			"empresário", "empreendedor", "sócio", "gestor", "gerente",
			"executivo", "c-level", "head", "líder", "coordenador",
			"médico", "médica", "dr.", "dra.", "advogado", "advogada",
			"dentista", "arquiteto", "engenheiro", "psicólogo", "nutricionista",
			"fisioterapeuta", "coach", "consultor", "consultora",
			"entrepreneur", "business owner", "manager", "director",
		},
		InterestCategories: map[string][]string{
			"marketing":  {"marketing", "growth", "vendas", "sales", "leads", "tráfego"},
			"tecnologia": {"tech", "startup", "saas", "software", "automação", "ia", "ai"},
			"negocios":   {"business", "negócio", "empresa", "empreend", "lucro", "faturamento"},
			"estetica":   {"estética", "beleza", "clínica", "procedimento", "harmonização"},
			"saude":      {"saúde", "bem-estar", "fitness", "nutrição", "medicina"},
			"financas":   {"investimento", "finanças", "renda", "dinheiro", "patrimônio"},
			"educacao":   {"curso", "mentoria", "treinamento", "ensino", "educação"},
		},
		HighValueLocations: []string{
			"sp", "são paulo", "sao paulo", "sampa",
			"rj", "rio de janeiro", "rio",
			"bh", "belo horizonte",
			"brasília", "brasilia", "df",
			"curitiba", "porto alegre", "florianópolis", "salvador",
			"recife", "fortaleza", "campinas",
		},
		Thresholds: &domain.TierThresholds{Hot: 70, Warm: 50, Cold: 40},
	}
}

// locationDisplay maps matched location markers to their display names.
var locationDisplay = map[string]string{
	"sp": "São Paulo", "são paulo": "São Paulo", "sao paulo": "São Paulo", "sampa": "São Paulo",
	"rj": "Rio de Janeiro", "rio de janeiro": "Rio de Janeiro", "rio": "Rio de Janeiro",
	"bh": "Belo Horizonte", "belo horizonte": "Belo Horizonte",
	"df": "Brasília", "brasília": "Brasília", "brasilia": "Brasília",
}

// professionKeywords drives profession detection for personalization hooks.
// Detection order is fixed so results are deterministic.
var professionKeywords = []struct {
	name     string
	keywords []string
}{
	{"médico", []string{"médico", "médica", "dr.", "dra.", "medicina"}},
	{"dentista", []string{"dentista", "odonto", "cirurgião dentista"}},
	{"advogado", []string{"advogado", "advogada", "jurídico", "direito"}},
	{"empresário", []string{"empresário", "empresária", "empreendedor", "founder", "ceo"}},
	{"coach", []string{"coach", "mentora", "mentor"}},
	{"consultor", []string{"consultor", "consultora", "consultoria"}},
	{"nutricionista", []string{"nutricionista", "nutri", "nutrição"}},
	{"psicólogo", []string{"psicólogo", "psicóloga", "psico", "terapeuta"}},
	{"arquiteto", []string{"arquiteto", "arquiteta", "arquitetura"}},
	{"designer", []string{"designer", "design", "ux", "ui"}},
	{"desenvolvedor", []string{"developer", "desenvolvedor", "programador", "tech"}},
	{"marketing", []string{"marketing", "growth", "social media", "tráfego"}},
}

func detectProfession(text string) string {
	for _, p := range professionKeywords {
		if matchesAny(text, p.keywords) {
			return p.name
		}
	}
	return ""
}
