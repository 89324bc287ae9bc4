package traps

import "fmt"

// osNames covers the register based OS traps 0xA000-0xA0FF. Flag bits 8-10
// are ignored unless a variant has its own entry in variantNames.
var osNames = map[uint16]string{
	0xA000: "Open", 0xA001: "Close", 0xA002: "Read", 0xA003: "Write",
	0xA004: "Control", 0xA005: "Status", 0xA006: "KillIO", 0xA007: "GetVolInfo",
	0xA008: "Create", 0xA009: "Delete", 0xA00A: "OpenRF", 0xA00B: "Rename",
	0xA00C: "GetFileInfo", 0xA00D: "SetFileInfo", 0xA00E: "UnmountVol", 0xA00F: "MountVol",
	0xA010: "Allocate", 0xA011: "GetEOF", 0xA012: "SetEOF", 0xA013: "FlushVol",
	0xA014: "GetVol", 0xA015: "SetVol", 0xA016: "InitQueue", 0xA017: "Eject",
	0xA018: "GetFPos", 0xA019: "InitZone", 0xA01A: "GetZone", 0xA01B: "SetZone",
	0xA01C: "FreeMem", 0xA01D: "MaxMem", 0xA01E: "NewPtr", 0xA01F: "DisposePtr",
	0xA020: "SetPtrSize", 0xA021: "GetPtrSize", 0xA022: "NewHandle", 0xA023: "DisposeHandle",
	0xA024: "SetHandleSize", 0xA025: "GetHandleSize", 0xA026: "HandleZone", 0xA027: "ReallocHandle",
	0xA028: "RecoverHandle", 0xA029: "HLock", 0xA02A: "HUnlock", 0xA02B: "EmptyHandle",
	0xA02C: "InitApplZone", 0xA02D: "SetApplLimit", 0xA02E: "BlockMove", 0xA02F: "PostEvent",
	0xA030: "OSEventAvail", 0xA031: "GetOSEvent", 0xA032: "FlushEvents", 0xA033: "VInstall",
	0xA034: "VRemove", 0xA035: "OffLine", 0xA036: "MoreMasters", 0xA038: "WriteParam",
	0xA039: "ReadDateTime", 0xA03A: "SetDateTime", 0xA03B: "Delay", 0xA03C: "CmpString",
	0xA03D: "DrvrInstall", 0xA03E: "DrvrRemove", 0xA03F: "InitUtil", 0xA040: "ResrvMem",
	0xA041: "SetFilLock", 0xA042: "RstFilLock", 0xA043: "SetFilType", 0xA044: "SetFPos",
	0xA045: "FlushFile", 0xA046: "GetTrapAddress", 0xA047: "SetTrapAddress", 0xA048: "PtrZone",
	0xA049: "HPurge", 0xA04A: "HNoPurge", 0xA04B: "SetGrowZone", 0xA04C: "CompactMem",
	0xA04D: "PurgeMem", 0xA04E: "AddDrive", 0xA04F: "RDrvrInstall", 0xA050: "RelString",
	0xA051: "ReadXPRam", 0xA052: "WriteXPRam", 0xA054: "UprString", 0xA055: "StripAddress",
	0xA056: "LowerText", 0xA057: "SetAppBase", 0xA058: "InsTime", 0xA059: "RmvTime",
	0xA05A: "PrimeTime", 0xA05B: "PowerOff", 0xA05C: "MemoryDispatch", 0xA05D: "SwapMMUMode",
	0xA05E: "NMInstall", 0xA05F: "NMRemove", 0xA060: "FSDispatch", 0xA061: "MaxBlock",
	0xA062: "PurgeSpace", 0xA063: "MaxApplZone", 0xA064: "MoveHHi", 0xA065: "StackSpace",
	0xA066: "NewEmptyHandle", 0xA067: "HSetRBit", 0xA068: "HClrRBit", 0xA069: "HGetState",
	0xA06A: "HSetState", 0xA06C: "InitFS", 0xA06D: "InitEvents", 0xA06E: "SlotManager",
	0xA090: "SysEnvirons", 0xA0BD: "FlushCodeCache",
}

// variantNames are OS traps whose flag bits select a different routine.
var variantNames = map[uint16]string{
	0xA200: "HOpen", 0xA208: "HCreate", 0xA209: "HDelete", 0xA20A: "HOpenRF",
	0xA20B: "HRename", 0xA20C: "HGetFileInfo", 0xA20D: "HSetFileInfo",
	0xA214: "HGetVol", 0xA215: "HSetVol", 0xA241: "HSetFLock", 0xA242: "HRstFLock",
	0xA260: "HFSDispatch", 0xA31E: "NewPtrClear", 0xA322: "NewHandleClear",
	0xA51E: "NewPtrSys", 0xA522: "NewHandleSys", 0xA71E: "NewPtrSysClear",
	0xA722: "NewHandleSysClear", 0xA346: "GetOSTrapAddress", 0xA746: "GetToolTrapAddress",
	0xA647: "SetToolTrapAddress", 0xA247: "SetOSTrapAddress",
}

// toolboxNames covers the stack based traps 0xA800-0xABFF. The auto-pop bit
// 0x0400 is ignored.
var toolboxNames = map[uint16]string{
	0xA80D: "Count1Resources", 0xA80E: "Get1IxResource", 0xA80F: "Get1IxType",
	0xA810: "Unique1ID", 0xA815: "SCSIDispatch", 0xA816: "Pack8", 0xA81C: "Count1Types",
	0xA81F: "Get1Resource", 0xA820: "Get1NamedResource", 0xA821: "MaxSizeRsrc",
	0xA822: "ResourceDispatch", 0xA82B: "Pack9", 0xA82C: "Pack10", 0xA82D: "Pack11",
	0xA82E: "Pack12", 0xA82F: "Pack13", 0xA830: "Pack14", 0xA831: "Pack15",
	0xA850: "InitCursor", 0xA851: "SetCursor", 0xA852: "HideCursor", 0xA853: "ShowCursor",
	0xA856: "ObscureCursor", 0xA860: "WaitNextEvent", 0xA86E: "InitGraf", 0xA86F: "OpenPort",
	0xA873: "SetPort", 0xA874: "GetPort", 0xA88F: "OSDispatch", 0xA8FE: "InitFonts",
	0xA912: "InitWindows", 0xA930: "InitMenus", 0xA96E: "Dequeue", 0xA96F: "Enqueue",
	0xA970: "GetNextEvent", 0xA971: "EventAvail", 0xA972: "GetMouse", 0xA973: "StillDown",
	0xA974: "Button", 0xA975: "TickCount", 0xA976: "GetKeys", 0xA977: "WaitMouseUp",
	0xA97B: "InitDialogs", 0xA992: "DetachResource", 0xA993: "SetResPurge",
	0xA994: "CurResFile", 0xA995: "InitResources", 0xA996: "RsrcZoneInit",
	0xA997: "OpenResFile", 0xA998: "UseResFile", 0xA999: "UpdateResFile",
	0xA99A: "CloseResFile", 0xA99B: "SetResLoad", 0xA99C: "CountResources",
	0xA99D: "GetIndResource", 0xA99E: "CountTypes", 0xA99F: "GetIndType",
	0xA9A0: "GetResource", 0xA9A1: "GetNamedResource", 0xA9A2: "LoadResource",
	0xA9A3: "ReleaseResource", 0xA9A4: "HomeResFile", 0xA9A5: "SizeRsrc",
	0xA9A6: "GetResAttrs", 0xA9A7: "SetResAttrs", 0xA9A8: "GetResInfo",
	0xA9A9: "SetResInfo", 0xA9AA: "ChangedResource", 0xA9AB: "AddResource",
	0xA9AC: "AddReference", 0xA9AD: "RmveResource", 0xA9AE: "RmveReference",
	0xA9AF: "ResError", 0xA9B0: "WriteResource", 0xA9B1: "CreateResFile",
	0xA9B2: "SystemEvent", 0xA9B3: "SystemClick", 0xA9B4: "SystemTask",
	0xA9B5: "SystemMenu", 0xA9B6: "OpenDeskAcc", 0xA9B7: "CloseDeskAcc",
	0xA9B8: "GetPattern", 0xA9B9: "GetCursor", 0xA9BA: "GetString", 0xA9BB: "GetIcon",
	0xA9BC: "GetPicture", 0xA9BD: "GetNewWindow", 0xA9BE: "GetNewControl",
	0xA9BF: "GetRMenu", 0xA9C0: "GetNewMBar", 0xA9C1: "UniqueID", 0xA9C2: "SysEdit",
	0xA9C4: "OpenRFPerm", 0xA9C5: "RsrcMapEntry", 0xA9C6: "SecondsToDate",
	0xA9C7: "DateToSeconds", 0xA9C8: "SysBeep", 0xA9C9: "SysError",
	0xA9E1: "HandToHand", 0xA9E2: "PtrToXHand", 0xA9E3: "PtrToHand",
	0xA9E4: "HandAndHand", 0xA9E5: "InitPack", 0xA9E6: "InitAllPacks",
	0xA9E7: "Pack0", 0xA9E8: "Pack1", 0xA9E9: "Pack2", 0xA9EA: "Pack3",
	0xA9EB: "FP68K", 0xA9EC: "Elems68K", 0xA9ED: "Pack6", 0xA9EE: "DecStr68K",
	0xA9EF: "PtrAndHand", 0xA9F0: "LoadSeg", 0xA9F1: "UnloadSeg", 0xA9F2: "Launch",
	0xA9F3: "Chain", 0xA9F4: "ExitToShell", 0xA9F5: "GetAppParms",
	0xA9F6: "GetResFileAttrs", 0xA9F7: "SetResFileAttrs", 0xA9FC: "ZeroScrap",
	0xA9FD: "GetScrap", 0xA9FE: "PutScrap", 0xA9FF: "Debugger", 0xABFF: "DebugStr",
}

var reservedNames = map[uint16]string{
	OpExit:       "mosExit",
	OpDispatch:   "mosDispatch",
	OpBreakpoint: "mosBreakpoint",
	OpGoNative:   "mosGoNative",
}

// Name returns the symbolic name of an A-line trap word, or a hex
// placeholder for traps the table does not know.
func Name(trap uint16) string {
	if name, ok := reservedNames[trap]; ok {
		return name
	}
	if trap&0x0800 == 0 {
		if name, ok := variantNames[trap]; ok {
			return name
		}
		if name, ok := osNames[trap&0xF8FF]; ok {
			return name
		}
	} else if name, ok := toolboxNames[trap&^0x0400]; ok {
		return name
	}
	return fmt.Sprintf("trap_%04X", trap)
}
