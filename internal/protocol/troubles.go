package protocol

// TroubleDef describes one trouble indicator.
type TroubleDef struct {
	Code         byte
	MachineLabel string
	Name         string
}

// Troubles are the panel trouble indicators reported by events 44/45.
var Troubles = []TroubleDef{
	{0, "natrouble", "N/A Trouble"},
	{1, "powerfailure", "Power Failure"},
	{2, "batteryfailure", "Battery Failure"},
	{3, "auxcurrentoverload", "Aux Current Overload"},
	{4, "bellcurrentoverload", "Bell Current Overload"},
	{5, "belldisconnected", "Bell Disconnected"},
	{6, "clockloss", "Clock Loss"},
	{7, "firelooptrouble", "Fire Loop Trouble"},
	{8, "failuretocommunicatetelephone1", "Failure to Communicate Telephone #1"},
	{9, "failuretocommunicatetelephone2", "Failure to Communicate Telephone #2"},
	{11, "failuretocommunicatevoice", "Failure to Communicate Voice Report"},
	{12, "rfjamming", "RF Jamming"},
	{13, "gsmrfjamming", "GSM RF Jamming"},
	{14, "gsmnoservice", "GSM No Service"},
	{15, "gsmsupervisionlost", "GSM Supervision Lost"},
	{16, "failuretocommunicateipreceiver1gprs", "Failure to Communicate IP Receiver #1 (GPRS)"},
	{17, "failuretocommunicateipreceiver2gprs", "Failure to Communicate IP Receiver #2 (GPRS)"},
	{18, "ipmodulenoservice", "IP Module No Service"},
	{19, "ipmodulesupervisionlost", "IP Module Supervision Lost"},
	{20, "failuretocommunicateipreceiver1ip", "Failure to Communicate IP Receiver #1 (IP)"},
	{21, "failuretocommunicateipreceiver2ip", "Failure to Communicate IP Receiver #2 (IP)"},
	{99, "anynewtroubleevent", "Any New Trouble"},
}

// ModuleTroubles are the module trouble indicators reported by events 46/47.
var ModuleTroubles = []TroubleDef{
	{0, "modulecommunicationfault", "Bus / EBus / Wireless module communication fault"},
	{1, "tampertrouble", "Tamper Trouble"},
	{2, "powerfailure", "Power Failure"},
	{3, "batteryfailure", "Battery Failure"},
	{99, "anytrouble", "Any Trouble"},
}
