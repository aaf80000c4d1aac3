package portal

import "fmt"

// DefaultBaseURL is the production investor-service portal.
const DefaultBaseURL = "https://investorservice.cfmmc.com"

// Portal paths. The export endpoints return the spreadsheet for whatever
// parameter selection the session last posted.
const (
	loginPath         = "/login.do"
	logoutPath        = "/logout.do"
	setParameterPath  = "/customer/setParameter.do"
	dailyExportPath   = "/customer/setupViewCustomerDetailFromCompanyWithExcel.do"
	monthlyExportPath = "/customer/setupViewCustomerMonthDetailFromCompanyWithExcel.do"
)

// tokenField is the Struts anti-forgery token. Every authenticated POST must
// echo the value scraped from the previous response.
const tokenField = "org.apache.struts.taglib.html.TOKEN"

// Response body markers used to classify a login attempt.
const (
	captchaRejectedMarker = "验证码错误"
	badCredentialsMarker  = "请勿在公用电脑上记录您的查询密码"
)

// QueryType selects the report breakdown the portal offers for one period.
type QueryType string

const (
	// QueryByDay is the 逐日 (day-by-day) breakdown.
	QueryByDay QueryType = "day"
	// QueryByTrade is the 逐笔 (trade-by-trade) breakdown.
	QueryByTrade QueryType = "trade"
)

// Label returns the portal's Chinese name for the query type, used in output
// directory names.
func (q QueryType) Label() string {
	switch q {
	case QueryByDay:
		return "逐日"
	case QueryByTrade:
		return "逐笔"
	default:
		return string(q)
	}
}

// ParseQueryType accepts the wire value or the Chinese label.
func ParseQueryType(s string) (QueryType, error) {
	switch s {
	case "day", "逐日":
		return QueryByDay, nil
	case "trade", "逐笔":
		return QueryByTrade, nil
	default:
		return "", fmt.Errorf("unknown query type %q (want day or trade)", s)
	}
}
