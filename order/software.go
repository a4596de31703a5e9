package order

type Software struct {
	Code string
	Name string
}

// ServerSoftware is the CA's server software code table.
var ServerSoftware = []Software{
	{"1", "OTHER"},
	{"2", "AOL"},
	{"3", "Apache-ModSSL"},
	{"4", "Apache-SSL (Ben-SSL, not Stronghold)"},
	{"5", "C2Net Stronghold"},
	{"6", "Cisco 3000 Series VPN Concentrator"},
	{"7", "Citrix"},
	{"8", "Cobalt Raq"},
	{"9", "Covalent Server Software"},
	{"10", "Ensim"},
	{"11", "HSphere"},
	{"12", "IBM HTTP Server"},
	{"13", "IBM Internet Connection Server"},
	{"14", "iPlanet"},
	{"15", "Java Web Server"},
	{"16", "Lotus Domino"},
	{"17", "Lotus Domino Go!"},
	{"18", "Microsoft IIS 1.x to 4.x"},
	{"19", "Microsoft IIS 5.x to 6.x"},
	{"20", "Microsoft IIS 7.x+"},
	{"21", "Netscape Enterprise Server"},
	{"22", "Netscape FastTrack"},
	{"23", "Novell Web Server"},
	{"24", "Oracle"},
	{"25", "Plesk"},
	{"26", "Quid Pro Quo"},
	{"27", "R3 SSL Server"},
	{"28", "Raven SSL"},
	{"29", "RedHat Linux"},
	{"30", "SAP Web Application Server"},
	{"31", "Tomcat"},
	{"32", "Website Professional"},
	{"33", "WebStar 4.x+"},
	{"34", "WebTen (Tenon)"},
	{"35", "WHM/CPanel"},
	{"36", "Zeus Web Server"},
	{"37", "Nginx"},
	{"38", "Heroku"},
	{"39", "Amazon Load Balancer"},
}

func LookupServerSoftware(code string) (Software, bool) {
	for _, s := range ServerSoftware {
		if s.Code == code {
			return s, true
		}
	}
	return Software{}, false
}
