package mozscape

import (
	"errors"
	"fmt"
	"math/bits"
	"sort"
	"strconv"
	"strings"
)

// Column 是 url-metrics 接口的列选择位（Cols 参数）。
// 每个取值都是 2 的幂，位号由 API 约定固定，不能改。
type Column uint64

// 括号里是响应中对应的字段名。
const (
	ColTitle                        Column = 1 << 0  // ut
	ColCanonicalURL                 Column = 1 << 2  // uu
	ColSubdomain                    Column = 1 << 3  // ufq
	ColRootDomain                   Column = 1 << 4  // upl
	ColExternalEquityLinks          Column = 1 << 5  // ueid
	ColSubdomainExternalLinks       Column = 1 << 6  // feid
	ColRootDomainExternalLinks      Column = 1 << 7  // peid
	ColEquityLinks                  Column = 1 << 8  // ujid
	ColSubdomainsLinking            Column = 1 << 9  // uifq
	ColRootDomainsLinking           Column = 1 << 10 // uipl
	ColLinks                        Column = 1 << 11 // uid
	ColSubdomainSubdomainsLinking   Column = 1 << 12 // fid
	ColRootDomainRootDomainsLinking Column = 1 << 13 // pid
	ColMozRankURL                   Column = 1 << 14 // umrp, umrr
	ColMozRankSubdomain             Column = 1 << 15 // fmrp, fmrr
	ColMozRankRootDomain            Column = 1 << 16 // pmrp, pmrr
	ColSpamScore                    Column = 1 << 26 // fspsc
	ColHTTPStatusCode               Column = 1 << 29 // us
	ColPageAuthority                Column = 1 << 35 // upa
	ColDomainAuthority              Column = 1 << 36 // pda
	ColLastCrawled                  Column = 1 << 57 // ulc
)

// FreeStatsCols 免费账号可以拿到的那一组列。
const FreeStatsCols = ColTitle |
	ColCanonicalURL |
	ColExternalEquityLinks |
	ColRootDomainExternalLinks |
	ColSubdomainsLinking |
	ColRootDomainsLinking |
	ColLinks |
	ColMozRankURL |
	ColMozRankSubdomain |
	ColHTTPStatusCode |
	ColPageAuthority |
	ColDomainAuthority |
	ColLastCrawled

// DomainAuthorityCols 只取 pda。
const DomainAuthorityCols = ColDomainAuthority

var ErrUnknownColumn = errors.New("unknown column")

var columnNames = map[string]Column{
	"title":                            ColTitle,
	"canonical_url":                    ColCanonicalURL,
	"subdomain":                        ColSubdomain,
	"root_domain":                      ColRootDomain,
	"external_equity_links":            ColExternalEquityLinks,
	"subdomain_external_links":         ColSubdomainExternalLinks,
	"root_domain_external_links":       ColRootDomainExternalLinks,
	"equity_links":                     ColEquityLinks,
	"subdomains_linking":               ColSubdomainsLinking,
	"root_domains_linking":             ColRootDomainsLinking,
	"links":                            ColLinks,
	"subdomain_subdomains_linking":     ColSubdomainSubdomainsLinking,
	"root_domain_root_domains_linking": ColRootDomainRootDomainsLinking,
	"mozrank_url":                      ColMozRankURL,
	"mozrank_subdomain":                ColMozRankSubdomain,
	"mozrank_root_domain":              ColMozRankRootDomain,
	"spam_score":                       ColSpamScore,
	"http_status_code":                 ColHTTPStatusCode,
	"page_authority":                   ColPageAuthority,
	"domain_authority":                 ColDomainAuthority,
	"last_crawled":                     ColLastCrawled,
}

// 响应字段名作为别名，方便直接写 cols=pda,upa
var columnAliases = map[string]string{
	"ut":    "title",
	"uu":    "canonical_url",
	"ueid":  "external_equity_links",
	"uid":   "links",
	"us":    "http_status_code",
	"upa":   "page_authority",
	"pda":   "domain_authority",
	"ulc":   "last_crawled",
	"fspsc": "spam_score",
}

// Combine 把若干列按位或成一个掩码。顺序无关，重复无影响。
func Combine(cols ...Column) Column {
	var mask Column
	for _, c := range cols {
		mask |= c
	}
	return mask
}

// Has 判断 c 中的所有位是否都已选中。
func (m Column) Has(c Column) bool {
	return c != 0 && m&c == c
}

// Names 返回掩码中已知列的名字（按位号升序），未知位忽略。
func (m Column) Names() []string {
	byBit := make(map[Column]string, len(columnNames))
	for name, c := range columnNames {
		byBit[c] = name
	}
	names := make([]string, 0, bits.OnesCount64(uint64(m)))
	for rest := uint64(m); rest != 0; rest &= rest - 1 {
		bit := Column(rest & -rest)
		if name, ok := byBit[bit]; ok {
			names = append(names, name)
		}
	}
	return names
}

func (m Column) String() string {
	return strconv.FormatUint(uint64(m), 10)
}

// ParseColumns 解析列名列表（支持逗号分隔、大小写不敏感、响应字段别名）。
func ParseColumns(names []string) (Column, error) {
	var mask Column
	for _, raw := range names {
		for _, part := range strings.Split(raw, ",") {
			name := strings.ToLower(strings.TrimSpace(part))
			if name == "" {
				continue
			}
			if full, ok := columnAliases[name]; ok {
				name = full
			}
			c, ok := columnNames[name]
			if !ok {
				return 0, fmt.Errorf("%w: %q", ErrUnknownColumn, part)
			}
			mask |= c
		}
	}
	if mask == 0 {
		return 0, fmt.Errorf("%w: empty selection", ErrUnknownColumn)
	}
	return mask, nil
}

// ColumnNames 返回全部可用列名（排序后）。
func ColumnNames() []string {
	names := make([]string, 0, len(columnNames))
	for name := range columnNames {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
