package proto

// Backend tool names as exposed on the gateway catalog. Stage handlers use
// them for allowed-tool lists; the tools server registers them.
const (
	ToolIdentificationTrip    = "ssci_identification_trip"
	ToolIdentificationJourney = "ssci_identification_journey"
	ToolValidateCheckin       = "ssci_validate_checkin"
	ToolCheckinAcceptance     = "ssci_checkin_acceptance"
	ToolBoardingPass          = "ssci_boarding_pass"
	ToolRegulatoryDetails     = "ssci_regulatory_details"
	ToolAncillaryCatalogue    = "ssci_ancillary_catalogue"
)
