package monitor

import (
	"net"

	"go-menshen/pkg/logger"

	"github.com/oschwald/geoip2-golang"
)

// GeoEnricher 基于MaxMind库的地理/ASN信息补充，两个reader都可以为nil
type GeoEnricher struct {
	city *geoip2.Reader
	asn  *geoip2.Reader
}

func NewGeoEnricher(city, asn *geoip2.Reader) *GeoEnricher {
	return &GeoEnricher{city: city, asn: asn}
}

// Lookup 返回IP的国家代码和ASN组织，查不到时为空串
func (g *GeoEnricher) Lookup(ipStr string) (country, asnOrg string) {
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return "", ""
	}

	if g.city != nil {
		record, err := g.city.City(ip)
		if err != nil {
			logger.Log.Debugf("GeoIP查询失败: ip=%s, err=%v", ipStr, err)
		} else {
			country = record.Country.IsoCode
		}
	}

	if g.asn != nil {
		record, err := g.asn.ASN(ip)
		if err != nil {
			logger.Log.Debugf("ASN查询失败: ip=%s, err=%v", ipStr, err)
		} else {
			asnOrg = record.AutonomousSystemOrganization
		}
	}

	return country, asnOrg
}

// Annotate 把地理信息写入证据上下文
func (g *GeoEnricher) Annotate(ipStr string, evidence map[string]interface{}) {
	if evidence == nil {
		return
	}
	country, asnOrg := g.Lookup(ipStr)
	if country != "" {
		evidence["country_code"] = country
	}
	if asnOrg != "" {
		evidence["asn_org"] = asnOrg
	}
}
